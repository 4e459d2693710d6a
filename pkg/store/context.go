package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gadgetlabs/Gaffer/pkg/ctxlog"
)

// UnknownUserID is used when a context is created without a user.
const UnknownUserID = "UNKNOWN"

// User is the identity an operation runs as.
type User struct {
	UserID    string   `json:"userId"`
	DataAuths []string `json:"dataAuths,omitempty"`
	OpAuths   []string `json:"opAuths,omitempty"`
}

// HasDataAuth reports whether the user holds auth.
func (u User) HasDataAuth(auth string) bool {
	for _, a := range u.DataAuths {
		if a == auth {
			return true
		}
	}
	return false
}

// Context is created per top-level execution and passed unchanged to every
// step of a chain. Its context.Context carries logging and tracing values
// only; cancelling it does not stop a running chain.
type Context struct {
	ctx   context.Context
	user  User
	jobID string
	vars  *configVars
}

type configVars struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewContext returns a context for user with a fresh job id.
func NewContext(user User) *Context {
	if user.UserID == "" {
		user.UserID = UnknownUserID
	}
	return &Context{
		ctx:   context.Background(),
		user:  user,
		jobID: uuid.NewString(),
		vars:  &configVars{values: make(map[string]string)},
	}
}

// WithContext returns c with ctx attached for logging and tracing.
func (c *Context) WithContext(ctx context.Context) *Context {
	c.ctx = ctx
	return c
}

// Context returns the attached context.Context.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// User returns the requesting user.
func (c *Context) User() User { return c.user }

// JobID returns the id of this execution.
func (c *Context) JobID() string { return c.jobID }

// Logger returns the logger carried by the attached context.
func (c *Context) Logger() *slog.Logger {
	return ctxlog.FromContext(c.Context()).With("jobId", c.jobID, "userId", c.user.UserID)
}

// SetConfig stores a request-scoped value.
func (c *Context) SetConfig(key, value string) {
	c.vars.mu.Lock()
	defer c.vars.mu.Unlock()
	c.vars.values[key] = value
}

// Config returns a request-scoped value.
func (c *Context) Config(key string) string {
	c.vars.mu.RLock()
	defer c.vars.mu.RUnlock()
	return c.vars.values[key]
}

// withContext returns a copy of c sharing its config with ctx attached.
func (c *Context) withContext(ctx context.Context) *Context {
	out := *c
	out.ctx = ctx
	return &out
}

// child returns a context for a job spawned from c: same user and config,
// the given job id and a context.Context detached from c's cancellation.
func (c *Context) child(jobID string) *Context {
	c.vars.mu.RLock()
	defer c.vars.mu.RUnlock()
	out := &Context{
		ctx:   context.WithoutCancel(c.Context()),
		user:  c.user,
		jobID: jobID,
		vars:  &configVars{values: make(map[string]string, len(c.vars.values))},
	}
	for k, v := range c.vars.values {
		out.vars.values[k] = v
	}
	return out
}
