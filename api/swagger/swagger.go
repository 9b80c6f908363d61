package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetable API",
        "description": "Timetable generation and conflict resolution service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Constraints", "description": "Scheduling rule store"},
        {"name": "Generation", "description": "Timetable generation jobs"},
        {"name": "Versions", "description": "Schedule version lifecycle"},
        {"name": "Conflicts", "description": "Conflict detection and resolution"},
        {"name": "Optimization", "description": "Post-generation improvement suggestions"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/timetable/constraints": {
            "get": {
                "tags": ["Constraints"],
                "summary": "List active constraints for an academic year",
                "parameters": [
                    {"name": "academicYearId", "in": "query", "type": "string", "required": true},
                    {"name": "scope", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Constraints"],
                "summary": "Register a scheduling constraint",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/constraints/{id}": {
            "get": {
                "tags": ["Constraints"],
                "summary": "Fetch one constraint",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Constraints"],
                "summary": "Update a constraint",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Constraints"],
                "summary": "Remove a constraint",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/timetable/generations": {
            "get": {
                "tags": ["Generation"],
                "summary": "List generation jobs for a scope",
                "parameters": [
                    {"name": "schoolId", "in": "query", "type": "string", "required": true},
                    {"name": "yearId", "in": "query", "type": "string", "required": true},
                    {"name": "termId", "in": "query", "type": "string", "required": true},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Generation"],
                "summary": "Submit a timetable generation job",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job already running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/generations/{id}": {
            "get": {
                "tags": ["Generation"],
                "summary": "Generation job status",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/generations/{id}/cancel": {
            "post": {
                "tags": ["Generation"],
                "summary": "Cancel a pending or running job; a terminal job echoes its state",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/current": {
            "get": {
                "tags": ["Versions"],
                "summary": "Currently published timetable for a scope",
                "parameters": [
                    {"name": "schoolId", "in": "query", "type": "string", "required": true},
                    {"name": "yearId", "in": "query", "type": "string", "required": true},
                    {"name": "termId", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Nothing published", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions": {
            "get": {
                "tags": ["Versions"],
                "summary": "List versions for a scope",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}": {
            "get": {
                "tags": ["Versions"],
                "summary": "Fetch a version",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "view", "in": "query", "type": "string", "description": "summary or full"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Versions"],
                "summary": "Discard a draft",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Not a draft", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/publish": {
            "post": {
                "tags": ["Versions"],
                "summary": "Publish a draft",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Unresolved critical conflicts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/archive": {
            "post": {
                "tags": ["Versions"],
                "summary": "Archive a published version",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/adjust": {
            "post": {
                "tags": ["Versions"],
                "summary": "Apply manual adjustments to a draft",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/adjustments": {
            "get": {
                "tags": ["Versions"],
                "summary": "Adjustment audit trail",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/regenerate": {
            "post": {
                "tags": ["Versions"],
                "summary": "Regenerate from an existing version",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/export": {
            "get": {
                "tags": ["Versions"],
                "summary": "Export a version as CSV or PDF",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "description": "csv or pdf"}
                ],
                "responses": {
                    "200": {"description": "File payload"}
                }
            }
        },
        "/timetable/versions/{id}/conflicts": {
            "get": {
                "tags": ["Conflicts"],
                "summary": "List conflicts of a version",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "unresolved", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/conflicts/rescan": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Re-detect conflicts for a version",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/suggestions": {
            "get": {
                "tags": ["Optimization"],
                "summary": "Improvement suggestions for a version",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/optimize": {
            "post": {
                "tags": ["Optimization"],
                "summary": "Apply selected suggestions",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/conflicts/{id}/resolve": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Resolve one conflict",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already resolved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/conflicts/bulk-resolve": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Resolve several conflicts with one method",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
