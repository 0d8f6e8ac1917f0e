// File: api/schemas/interfaces.go
package schemas

import "context"

// Gateway is the narrow interface to the external reasoning oracle. It has no
// semantic knowledge of intents or actions: prompt in, raw text out. Failures
// are reported as *GatewayError. Implementations are safe for concurrent use.
type Gateway interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}
