// Package docs registers the OpenAPI description of the status API with swag
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
        "/": {
            "get": {
                "description": "Get basic worker information and capabilities",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Worker information",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.WorkerInfoResponse"}
                    }
                }
            }
        },
        "/health": {
            "get": {
                "description": "Check if the worker is healthy and the capture loop is running",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.HealthResponse"}
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {"$ref": "#/definitions/handlers.HealthResponse"}
                    }
                }
            }
        },
        "/session": {
            "get": {
                "description": "Live counters of the recording session, capture loop and persistence jobs",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Current session",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.SessionResponse"}
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                    }
                }
            }
        },
        "/system/stats": {
            "get": {
                "description": "Get process statistics together with a host health sample",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Get system stats",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        },
        "/api/info": {
            "get": {
                "description": "Endpoint index of the status API",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "API information",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "running": {"type": "boolean"},
                "status": {"type": "string", "example": "healthy"},
                "worker_id": {"type": "string", "example": "capture-1"}
            }
        },
        "handlers.WorkerInfoResponse": {
            "type": "object",
            "properties": {
                "capabilities": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string", "example": "recording"},
                "version": {"type": "string", "example": "1.0.0"},
                "worker_id": {"type": "string", "example": "capture-1"}
            }
        },
        "handlers.SessionResponse": {
            "type": "object",
            "properties": {
                "session": {"type": "object", "additionalProperties": true},
                "capture": {"type": "object", "additionalProperties": true},
                "dispatcher": {"type": "object", "additionalProperties": true},
                "jobs": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "source": {"type": "object", "additionalProperties": true},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Capture Worker API",
	Description:      "Status API of the edge capture worker: liveness, live session counters and host health.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
