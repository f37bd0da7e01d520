package authcore

import "context"

type clientIPContextKey struct{}
type projectTypeContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it for per-IP
// login throttling and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithProjectType scopes identity lookups and registrations to one project. Without
// it the Engine uses Config.Registration.DefaultProject.
func WithProjectType(ctx context.Context, projectType string) context.Context {
	return context.WithValue(ctx, projectTypeContextKey{}, projectType)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func (e *Engine) projectFromContext(ctx context.Context) string {
	if ctx != nil {
		if p, _ := ctx.Value(projectTypeContextKey{}).(string); p != "" {
			return p
		}
	}
	return e.config.Registration.DefaultProject
}
