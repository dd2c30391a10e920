// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the query-surface endpoints under rg.
//
// Endpoints:
//
//	GET    /v1/contacts                           - get_contacts
//	GET    /v1/topics                             - list_topics
//	POST   /v1/messages                           - send_message
//	GET    /v1/topics/:topicId/messages            - retrieve_messages
//	POST   /v1/invitations                        - create_invitation
//	POST   /v1/invitations/consume                - consume_invitation
//	GET    /v1/topics/:topicId/proposals           - get_proposals
//	PUT    /v1/topics/:topicId/proposal-config     - update_proposal_config
//	GET    /v1/health                             - liveness
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.GET("/contacts", handlers.HandleGetContacts)
	rg.GET("/topics", handlers.HandleListTopics)
	rg.POST("/messages", handlers.HandleSendMessage)
	rg.GET("/topics/:topicId/messages", handlers.HandleRetrieveMessages)
	rg.POST("/invitations", handlers.HandleCreateInvitation)
	rg.POST("/invitations/consume", handlers.HandleConsumeInvitation)
	rg.GET("/topics/:topicId/proposals", handlers.HandleGetProposals)
	rg.PUT("/topics/:topicId/proposal-config", handlers.HandleUpdateProposalConfig)
	rg.GET("/health", handlers.HandleHealth)
}
