package translator

import (
	"context"
)

// Register registers the request and response translators for a schema pair.
// The from format is the client-facing schema and the to format is the
// upstream schema.
func Register(from, to string, request RequestTransform, response ResponseTransform) {
	Default().Register(FromString(from), FromString(to), request, response)
}

// Request translates a request payload between schemas.
func Request(from, to string, modelName string, rawJSON []byte, stream bool) []byte {
	return Default().TranslateRequest(FromString(from), FromString(to), modelName, rawJSON, stream)
}

// NeedConvert reports whether a response translator is registered for the pair.
func NeedConvert(from, to string) bool {
	return Default().HasResponseTransformer(FromString(from), FromString(to))
}

// Response translates one upstream stream record into client-facing chunks.
func Response(ctx context.Context, from, to string, modelName string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) []string {
	return Default().TranslateStream(ctx, FromString(from), FromString(to), modelName, originalRequestRawJSON, requestRawJSON, rawJSON, param)
}

// ResponseNonStream translates a complete upstream response payload.
func ResponseNonStream(ctx context.Context, from, to string, modelName string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) string {
	return Default().TranslateNonStream(ctx, FromString(from), FromString(to), modelName, originalRequestRawJSON, requestRawJSON, rawJSON, param)
}
