// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go
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
        "/v1/identity/anonymous": {
            "post": {
                "produces": ["application/json"],
                "tags": ["identity"],
                "summary": "Create an anonymous identity",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.anonymousResponse"}}
                }
            }
        },
        "/v1/identity/callsign": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["identity"],
                "summary": "Request a callsign change",
                "parameters": [
                    {"description": "Requested callsign", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.callsignRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "202": {"description": "Accepted"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/admission": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admission"],
                "summary": "Current admission state",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/admission/gateway": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admission"],
                "summary": "Submit the gateway phrase",
                "parameters": [
                    {"description": "Gateway phrase", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.gatewayRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/admission/identity": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admission"],
                "summary": "Register or recall an identity",
                "parameters": [
                    {"description": "Callsign and optional invite key", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.identityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/admission/session-code": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admission"],
                "summary": "Submit the session code",
                "parameters": [
                    {"description": "Four digit code", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.sessionCodeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Read the channel log",
                "parameters": [
                    {"type": "integer", "name": "after_seq", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Post a message",
                "parameters": [
                    {"description": "Message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.sendMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/handler.errorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        },
        "/v1/admin/session-requests/{id}/approve": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Approve a session request",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.codeResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.errorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "string"}}
        },
        "handler.anonymousResponse": {
            "type": "object",
            "properties": {"user_id": {"type": "string"}, "token": {"type": "string"}}
        },
        "handler.callsignRequest": {
            "type": "object",
            "required": ["callsign"],
            "properties": {"callsign": {"type": "string", "maxLength": 64}}
        },
        "handler.gatewayRequest": {
            "type": "object",
            "required": ["phrase"],
            "properties": {"phrase": {"type": "string", "maxLength": 72}}
        },
        "handler.identityRequest": {
            "type": "object",
            "properties": {"callsign": {"type": "string"}, "invite_key": {"type": "string"}}
        },
        "handler.sessionCodeRequest": {
            "type": "object",
            "required": ["code"],
            "properties": {"code": {"type": "string"}}
        },
        "handler.sendMessageRequest": {
            "type": "object",
            "properties": {
                "recipient": {"type": "string"},
                "content": {"type": "string"},
                "attachment": {
                    "type": "object",
                    "properties": {"name": {"type": "string"}, "mime_type": {"type": "string"}, "data": {"type": "string", "format": "byte"}}
                }
            }
        },
        "handler.codeResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Raven Portal API",
	Description:      "Gated ephemeral messaging portal: gateway, admission, approval queue and channel.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
