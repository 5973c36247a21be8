// Package docs registers the OpenAPI 2.0 document served by gin-swagger at
// /swagger/*any. It mirrors the swag annotations on the HTTP handlers.
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
        "/groups": {
            "post": {
                "description": "Creates an empty group and returns its id and single-use pairing code.",
                "produces": ["application/json"],
                "tags": ["Groups"],
                "summary": "Create a group",
                "operationId": "createGroup",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.CreateGroupResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups/{groupid}/devices": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Groups"],
                "summary": "List devices of a group",
                "operationId": "listDevices",
                "parameters": [
                    {"type": "integer", "description": "Group ID", "name": "groupid", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handlers.DeviceResponse"}}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Token for another group", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Pairs a device using the group's pairing code. The first device is authorized.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Groups"],
                "summary": "Pair a device",
                "operationId": "registerDevice",
                "parameters": [
                    {"type": "integer", "description": "Group ID", "name": "groupid", "in": "path", "required": true},
                    {"description": "Pairing payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RegisterDeviceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.DeviceResponse"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Wrong or consumed pairing code", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Group not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/token": {
            "get": {
                "security": [{"BasicAuth": []}],
                "description": "Exchanges HTTP Basic credentials (device id and secret) for a bearer token.",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Obtain a device token",
                "operationId": "issueToken",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TokenResponse"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Device not authorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups/{groupid}/{kind}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns every record and tombstone changed strictly after changedsince, oldest first.\nWithout changedsince the full feed is returned. Supports weak ETags via If-None-Match.",
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "Pull changes of a kind",
                "operationId": "listRecords",
                "parameters": [
                    {"type": "integer", "description": "Group ID", "name": "groupid", "in": "path", "required": true},
                    {"enum": ["categories", "units", "products", "recipes", "ingredients", "tags", "taggedproducts", "lists", "entries"], "type": "string", "description": "Kind collection", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "example": "2024-05-01T12:00:00.000Z", "description": "ISO 8601 timestamp", "name": "changedsince", "in": "query"},
                    {"type": "string", "description": "Return 304 if the ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handlers.RecordJSON"}}, "headers": {"ETag": {"type": "string", "description": "Weak ETag of the feed"}}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "400": {"description": "Invalid changedsince", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Token for another group", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Creates a record with a client-chosen uuid. lastChanged defaults to the server time.\nA retry carrying the same Idempotency-Key returns the stored outcome.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "Create a record",
                "operationId": "createRecord",
                "parameters": [
                    {"type": "integer", "description": "Group ID", "name": "groupid", "in": "path", "required": true},
                    {"type": "string", "description": "Kind collection", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "description": "Client retry key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Record fields", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RecordJSON"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.RecordJSON"}},
                    "400": {"description": "Invalid data, uuid, date or reference", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "UUID already used", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups/{groupid}/{kind}/{uuid}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "Fetch one record",
                "operationId": "getRecord",
                "parameters": [
                    {"type": "integer", "description": "Group ID", "name": "groupid", "in": "path", "required": true},
                    {"type": "string", "description": "Kind collection", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "description": "Record UUID", "name": "uuid", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RecordJSON"}},
                    "400": {"description": "Malformed UUID", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Never existed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "410": {"description": "Deleted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Replaces the record's fields when lastChanged is not older than the stored one.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "Update a record",
                "operationId": "updateRecord",
                "parameters": [
                    {"type": "integer", "description": "Group ID", "name": "groupid", "in": "path", "required": true},
                    {"type": "string", "description": "Kind collection", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "description": "Record UUID", "name": "uuid", "in": "path", "required": true},
                    {"description": "Record fields", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RecordJSON"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RecordJSON"}},
                    "400": {"description": "Invalid data, uuid, date or reference", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Never existed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Stale lastChanged", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "410": {"description": "Deleted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Deletes the record and returns its tombstone.",
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "Delete a record",
                "operationId": "deleteRecord",
                "parameters": [
                    {"type": "integer", "description": "Group ID", "name": "groupid", "in": "path", "required": true},
                    {"type": "string", "description": "Kind collection", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "description": "Record UUID", "name": "uuid", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RecordJSON"}},
                    "404": {"description": "Never existed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "410": {"description": "Already deleted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.CreateGroupResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "pairingCode": {"type": "string"}
            }
        },
        "handlers.DeviceResponse": {
            "type": "object",
            "properties": {
                "authorized": {"type": "boolean"},
                "createdAt": {"type": "string"},
                "groupId": {"type": "integer"},
                "id": {"type": "integer"},
                "name": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "handlers.RecordJSON": {
            "type": "object",
            "additionalProperties": true
        },
        "handlers.RegisterDeviceRequest": {
            "type": "object",
            "required": ["name", "pairingCode", "secret"],
            "properties": {
                "name": {"type": "string"},
                "pairingCode": {"type": "string"},
                "secret": {"type": "string"}
            }
        },
        "handlers.TokenResponse": {
            "type": "object",
            "properties": {
                "expiresAt": {"type": "string"},
                "token": {"type": "string"},
                "tokenType": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BasicAuth": {"type": "basic"},
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "InstaList Sync API",
	Description:      "Shopping-list synchronization server for paired devices.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
