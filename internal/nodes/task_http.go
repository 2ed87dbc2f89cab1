package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/pkg/models"
)

func init() {
	models.RegisterDefinitionValidator(models.RuntimeHTTPTask, func(def *models.NodeDefinition) []string {
		var diags []string
		if _, ok := def.Config["url"].(string); !ok {
			diags = append(diags, fmt.Sprintf("node %q: config.url is required", def.ID))
		}
		return diags
	})
}

// RateLimiter caps how often a keyed operation may proceed. Allow reports
// whether the call under key is permitted right now.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisRateLimiter is a fixed-window counter built on INCR+EXPIRE, the same
// pattern the teacher's cache.RedisCache wraps a *redis.Client for elsewhere
// (internal/infrastructure/cache). One counter key per window per rate-limit
// key; the first caller in a window sets the expiry, every caller after just
// increments.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter builds a RateLimiter backed by client. client may be a
// real *redis.Client or one pointed at a miniredis instance in tests.
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := "mbflow:ratelimit:" + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limiter incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("rate limiter expire: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// HTTPTaskNode issues an outbound HTTP request per invocation. url, method,
// and headers come from config literally (as the teacher's HTTPExecutor
// reads them); body and the optional per-call rateLimitKey are evaluated as
// expr expressions against {variables, input, local, helpers}, the same
// environment TaskNode's script runs in, so a request payload can carry
// live workflow state. Response is recorded under config["outputVariable"].
// Grounded on the teacher's pkg/executor/builtin.HTTPExecutor for the
// request/response shape; the rate limiter is new surface this node adds
// so a shared Redis key can throttle a noisy downstream dependency across
// concurrent workflow instances, which a per-process in-memory limiter
// could not.
type HTTPTaskNode struct {
	def     *models.NodeDefinition
	url     string
	method  string
	headers map[string]string
	body    string
	output  string

	limiter     RateLimiter
	rateLimit   int
	rateWindow  time.Duration
	rateKeyExpr string

	client *http.Client
}

// NewHTTPTaskNode builds an HTTPTaskNode that rate-limits through limiter
// (nil disables rate limiting -- useful for tests and definitions that omit
// config.rateLimit).
func NewHTTPTaskNode(limiter RateLimiter) Constructor {
	return func() Node {
		return &HTTPTaskNode{limiter: limiter, client: &http.Client{Timeout: 30 * time.Second}}
	}
}

func (n *HTTPTaskNode) Initialize(def *models.NodeDefinition) error {
	n.def = def
	n.url, _ = def.Config["url"].(string)
	n.method, _ = def.Config["method"].(string)
	if n.method == "" {
		n.method = "GET"
	}
	n.body, _ = def.Config["body"].(string)
	n.output = "result"
	if v, ok := def.Config["outputVariable"].(string); ok && v != "" {
		n.output = v
	}

	n.headers = make(map[string]string)
	if raw, ok := def.Config["headers"].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				n.headers[k] = s
			}
		}
	}

	n.rateLimit = 0
	if v, ok := def.Config["rateLimit"].(int); ok {
		n.rateLimit = v
	} else if v, ok := def.Config["rateLimit"].(float64); ok {
		n.rateLimit = int(v)
	}
	n.rateWindow = time.Minute
	if v, ok := def.Config["rateWindow"].(string); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			n.rateWindow = d
		}
	}
	n.rateKeyExpr, _ = def.Config["rateLimitKey"].(string)

	return nil
}

func (n *HTTPTaskNode) Execute(ctx context.Context, run *RunContext, nodeCtx *models.NodeExecutionContext) (*models.NodeInstance, error) {
	start := time.Now()
	inst := &models.NodeInstance{
		InstanceID:         uuid.NewString(),
		NodeID:             n.def.ID,
		WorkflowInstanceID: run.InstanceID,
		StartTime:          start,
		ExecutionContext:   nodeCtx,
	}

	env := expreval.BuildEnvironment(run.Variables, nodeCtx)

	if n.limiter != nil && n.rateLimit > 0 {
		key := n.def.ID
		if n.rateKeyExpr != "" {
			if v, err := run.Evaluator.Evaluate(n.rateKeyExpr, env); err == nil {
				if s, ok := v.(string); ok && s != "" {
					key = s
				}
			}
		}
		allowed, err := n.limiter.Allow(ctx, key, n.rateLimit, n.rateWindow)
		if err != nil {
			inst.Status = models.InstanceFailed
			inst.EndTime = time.Now()
			inst.ErrorMessage = fmt.Sprintf("rate limiter error: %v", err)
			inst.Exception = err
			return inst, nil
		}
		if !allowed {
			inst.Status = models.InstanceFailed
			inst.EndTime = time.Now()
			inst.ErrorMessage = fmt.Sprintf("rate limit exceeded for %q (%d per %s)", key, n.rateLimit, n.rateWindow)
			return inst, nil
		}
	}

	url, method := n.url, n.method

	var bodyReader io.Reader
	if n.body != "" {
		rendered, err := run.Evaluator.Evaluate(n.body, env)
		if err != nil {
			return n.fail(inst, err), nil
		}
		switch v := rendered.(type) {
		case string:
			bodyReader = bytes.NewReader([]byte(v))
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return n.fail(inst, err), nil
			}
			bodyReader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return n.fail(inst, err), nil
	}
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return n.fail(inst, err), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return n.fail(inst, err), nil
	}

	var parsed interface{} = string(respBody)
	if json.Valid(respBody) {
		var v interface{}
		if err := json.Unmarshal(respBody, &v); err == nil {
			parsed = v
		}
	}

	nodeCtx.OutputData.Set(n.output, map[string]interface{}{
		"status": resp.StatusCode,
		"body":   parsed,
	})
	inst.EndTime = time.Now()
	if resp.StatusCode >= 400 {
		inst.Status = models.InstanceFailed
		inst.ErrorMessage = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return inst, nil
	}
	inst.Status = models.InstanceCompleted
	return inst, nil
}

func (n *HTTPTaskNode) fail(inst *models.NodeInstance, err error) *models.NodeInstance {
	inst.Status = models.InstanceFailed
	inst.EndTime = time.Now()
	inst.ErrorMessage = err.Error()
	inst.Exception = err
	return inst
}

func (n *HTTPTaskNode) Ports() []string { return []string{""} }
