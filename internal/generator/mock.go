// Package generator provides the text-generation backends behind the
// domain.Generator port.
package generator

import "context"

// Mock returns a fixed reply and is the default backend for local
// setups without an LLM endpoint.
type Mock struct{}

func (Mock) Generate(_ context.Context, _ string, _ int) (string, error) {
	return "Это ответ в режиме mock. По вашему запросу по Termidesk VDI: " +
		"проверьте документацию и при необходимости соберите логи для поддержки.", nil
}
