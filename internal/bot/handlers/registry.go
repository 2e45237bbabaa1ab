package handlers

import (
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RegisteredHandler represents a handler with its matching rule and middleware.
// When MatchFunc is set it takes precedence over HandlerType and Pattern.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	MatchFunc   tgbot.MatchFunc
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllHandlers returns the business message handler and the owner
// commands, keyed by a descriptive name.
func RegisterAllHandlers(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["business"] = RegisteredHandler{
		MatchFunc: isBusinessUpdate,
		Handler:   NewBusinessHandler(deps),
	}

	ownerMiddleware := []tgbot.Middleware{OwnerOnly(deps)}

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  ownerMiddleware,
	}
	handlers["/help"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "help",
		Handler:     NewHelpHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  ownerMiddleware,
	}
	handlers["/status"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "status",
		Handler:     NewStatusHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  ownerMiddleware,
	}
	handlers["/forget"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "forget",
		Handler:     NewForgetHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  ownerMiddleware,
	}
	handlers["/reset"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "reset",
		Handler:     NewResetHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  ownerMiddleware,
	}

	return handlers
}

func isBusinessUpdate(update *models.Update) bool {
	return update.BusinessMessage != nil || update.BusinessConnection != nil
}
