// Package docs registers the OpenAPI description of the API with swag so
// gin-swagger can serve it. Keep it in step with the handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/session": {"get": {"security": [{"BearerAuth": []}], "tags": ["session"], "summary": "Resolve the caller", "operationId": "getSession", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}},
        "/chat/scenario": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["chat"], "summary": "Scenario in effect", "operationId": "resolveScenario", "parameters": [{"type": "string", "name": "scenarioId", "in": "query"}, {"type": "string", "name": "demoScenarioId", "in": "query"}], "responses": {"200": {"description": "OK"}}},
            "put": {"security": [{"BearerAuth": []}], "tags": ["chat"], "summary": "Edit the scenario prompt (admin)", "operationId": "editScenario", "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}
        },
        "/me/scenarios": {"get": {"security": [{"BearerAuth": []}], "tags": ["chat"], "summary": "Active assignments of the caller", "operationId": "myScenarios", "responses": {"200": {"description": "OK"}}}},
        "/conversations": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["conversations"], "summary": "Grouped conversation list", "operationId": "listConversations", "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["conversations"], "summary": "Start a new conversation", "operationId": "createConversation", "responses": {"201": {"description": "Created"}}}
        },
        "/conversations/{id}": {"get": {"security": [{"BearerAuth": []}], "tags": ["conversations"], "summary": "Select a conversation", "operationId": "getConversation", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}, "404": {"description": "Not Found"}}}},
        "/conversations/{id}/messages": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["messages"], "summary": "Send a message", "operationId": "postMessage", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"type": "string", "name": "Idempotency-Key", "in": "header"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}},
            "delete": {"security": [{"BearerAuth": []}], "tags": ["conversations"], "summary": "Clear a conversation", "operationId": "clearConversation", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}}}
        },
        "/conversation-groups/{key}/toggle": {"post": {"security": [{"BearerAuth": []}], "tags": ["conversations"], "summary": "Toggle a group", "operationId": "toggleGroup", "parameters": [{"type": "string", "name": "key", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/messages": {"post": {"security": [{"BearerAuth": []}], "tags": ["messages"], "summary": "Send the first message of a new conversation", "operationId": "startConversation", "responses": {"201": {"description": "Created"}}}},
        "/messages/{id}/feedback": {"post": {"security": [{"BearerAuth": []}], "tags": ["feedback"], "summary": "Rate a bot reply", "operationId": "leaveFeedback", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}}},
        "/conversations/{id}/export/csv": {"get": {"security": [{"BearerAuth": []}], "tags": ["export"], "summary": "Transcript as CSV", "operationId": "exportCSV", "produces": ["text/csv"], "responses": {"200": {"description": "OK"}}}},
        "/conversations/{id}/export/pdf": {"get": {"security": [{"BearerAuth": []}], "tags": ["export"], "summary": "Transcript as PDF", "operationId": "exportPDF", "produces": ["application/pdf"], "responses": {"200": {"description": "OK"}}}},
        "/webhooks/reply-callback": {"post": {"tags": ["webhooks"], "summary": "Relay reply callback", "operationId": "replyCallback", "parameters": [{"type": "string", "name": "X-Webhook-Secret", "in": "header", "required": true}], "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}},
        "/admin/scenarios": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "List scenarios", "operationId": "listScenarios", "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Create a scenario", "operationId": "createScenario", "responses": {"201": {"description": "Created"}}}
        },
        "/admin/scenarios/{id}": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Get a scenario", "operationId": "getScenario", "responses": {"200": {"description": "OK"}}},
            "put": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Update a scenario", "operationId": "updateScenario", "responses": {"200": {"description": "OK"}}},
            "delete": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Delete a scenario", "operationId": "deleteScenario", "responses": {"204": {"description": "No Content"}}}
        },
        "/admin/scenarios/{id}/users": {"get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Users assigned to a scenario", "operationId": "scenarioUsers", "responses": {"200": {"description": "OK"}}}},
        "/admin/scenarios/{id}/users/{userId}/conversations": {"get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Review a user's conversations", "operationId": "reviewConversations", "responses": {"200": {"description": "OK"}}}},
        "/admin/scenarios/{id}/users/{userId}/conversations/{convId}/csv": {"get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Reviewed transcript as CSV", "operationId": "exportReviewCSV", "produces": ["text/csv"], "responses": {"200": {"description": "OK"}}}},
        "/admin/users": {"get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "List users", "operationId": "listUsers", "responses": {"200": {"description": "OK"}}}},
        "/admin/users/{userId}/assignments": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Assignments of a user", "operationId": "listUserAssignments", "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Assign a scenario", "operationId": "assignScenario", "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}}
        },
        "/admin/users/{userId}/scenarios/{scenarioId}/toggle": {"post": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Toggle an assignment", "operationId": "toggleAssignment", "responses": {"200": {"description": "OK"}}}},
        "/admin/analytics": {"get": {"security": [{"BearerAuth": []}], "tags": ["admin"], "summary": "Usage summary", "operationId": "getAnalytics", "responses": {"200": {"description": "OK"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Scenario Chat API",
	Description:      "Role-gated chat over admin-authored scenarios.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
