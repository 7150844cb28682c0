// Package interfaces provides type aliases for the translator function types.
// Handler and executor signatures reference these aliases so they do not need
// to import the translator registry package directly.
package interfaces

import "github.com/codexbridge/codexbridge/internal/translator/translator"

// Aliases for translator function types.
type TranslateRequestFunc = translator.RequestTransform

type TranslateResponseFunc = translator.ResponseStreamTransform

type TranslateResponseNonStreamFunc = translator.ResponseNonStreamTransform

type TranslateResponse = translator.ResponseTransform
