package aaa

import (
	"github.com/gin-gonic/gin"
	"saturn.io/saturn/pkg/migration"
)

const ContextActorKey = "current_actor"

type ContextActorOperator interface {
	SetContextActor(c *gin.Context, actor migration.Actor)
	GetContextActor(c *gin.Context) (migration.Actor, bool)
}

type ActorInfoHandler struct {
	ContextActorKey string
}

func NewActorInfoHandler() *ActorInfoHandler {
	return &ActorInfoHandler{
		ContextActorKey: ContextActorKey,
	}
}

func (i *ActorInfoHandler) SetContextActor(c *gin.Context, actor migration.Actor) {
	c.Set(i.ContextActorKey, actor)
}

func (i *ActorInfoHandler) GetContextActor(c *gin.Context) (migration.Actor, bool) {
	actor, exist := c.Get(i.ContextActorKey)
	if exist {
		return actor.(migration.Actor), true
	}
	return migration.Actor{}, false
}
