package base

import (
	"errors"

	"github.com/gin-gonic/gin"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service/aaa"
	"saturn.io/saturn/pkg/service/handlers"
)

// BaseHandler is the base handler for all handlers
type BaseHandler struct {
	aaa.ContextActorOperator
}

func NewBaseHandler(actor aaa.ContextActorOperator) BaseHandler {
	return BaseHandler{ContextActorOperator: actor}
}

// MustGetActor returns the authenticated caller, answering 401 when the request carries none.
func (h BaseHandler) MustGetActor(c *gin.Context) (migration.Actor, bool) {
	actor, ok := h.GetContextActor(c)
	if !ok {
		handlers.Unauthorized(c, errors.New(handlers.MessageUnauthorized))
	}
	return actor, ok
}
