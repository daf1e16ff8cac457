package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Hall Pass API",
        "description": "Hall pass issuance, tracking and escalation service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Passes", "description": "Pass lifecycle"},
        {"name": "Board", "description": "Live hall monitor view"},
        {"name": "Policies", "description": "Classroom policies and overrides"},
        {"name": "Groups", "description": "Student cohort management"},
        {"name": "Restrictions", "description": "Standing denial rules"},
        {"name": "Reports", "description": "Pass history exports"}
    ],
    "paths": {
        "/passes": {
            "get": {
                "tags": ["Passes"],
                "summary": "List pass history",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "location_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "date_from", "in": "query", "type": "string"},
                    {"name": "date_to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Passes"],
                "summary": "Request a new hall pass",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Denied by policy", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Student already holds a pass", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Rate limit exceeded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}": {
            "get": {
                "tags": ["Passes"],
                "summary": "Get one pass with its legs",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/events": {
            "get": {
                "tags": ["Passes"],
                "summary": "List a pass's audit events",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/arrive": {
            "post": {
                "tags": ["Passes"],
                "summary": "Mark the current leg arrived",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/continue": {
            "post": {
                "tags": ["Passes"],
                "summary": "Continue toward a new destination",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ContinueRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Denied by policy", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/return": {
            "post": {
                "tags": ["Passes"],
                "summary": "Close the pass on return",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/approve": {
            "post": {
                "tags": ["Passes"],
                "summary": "Approve a pending pass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/reject": {
            "post": {
                "tags": ["Passes"],
                "summary": "Reject a pending pass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/claim": {
            "post": {
                "tags": ["Passes"],
                "summary": "Claim responsibility for an open pass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/passes/open": {
            "get": {
                "tags": ["Passes"],
                "summary": "Get a student's current open pass",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No open pass", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/board/active": {
            "get": {
                "tags": ["Board"],
                "summary": "List all open passes with escalation state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies/evaluate": {
            "post": {
                "tags": ["Policies"],
                "summary": "Dry-run the policy engine",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EvaluationContext"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies/locations/{locationId}": {
            "get": {
                "tags": ["Policies"],
                "summary": "Get a location's default policy",
                "parameters": [
                    {"name": "locationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Policies"],
                "summary": "Set a location's default policy",
                "parameters": [
                    {"name": "locationId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetClassroomPolicyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies/locations/{locationId}/students/{studentId}": {
            "get": {
                "tags": ["Policies"],
                "summary": "List a student's overrides at a location",
                "parameters": [
                    {"name": "locationId", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Policies"],
                "summary": "Set a per-student override",
                "parameters": [
                    {"name": "locationId", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetOverrideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Policies"],
                "summary": "Remove a per-student override",
                "parameters": [
                    {"name": "locationId", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/groups": {
            "get": {
                "tags": ["Groups"],
                "summary": "List groups",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Groups"],
                "summary": "Create a group",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GroupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/{id}": {
            "get": {
                "tags": ["Groups"],
                "summary": "Get one group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Groups"],
                "summary": "Update a group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GroupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Groups"],
                "summary": "Delete a group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/groups/{id}/members": {
            "post": {
                "tags": ["Groups"],
                "summary": "Add a student to a group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddMemberRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/groups/{id}/members/{studentId}": {
            "delete": {
                "tags": ["Groups"],
                "summary": "Remove a student from a group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/students/{studentId}/restrictions": {
            "get": {
                "tags": ["Restrictions"],
                "summary": "List a student's restrictions",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Restrictions"],
                "summary": "Attach a restriction to a student",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRestrictionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/restrictions/{id}": {
            "delete": {
                "tags": ["Restrictions"],
                "summary": "Deactivate a restriction",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/reports/passes": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download pass history as CSV or PDF",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "location_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "Pass": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "home_location_id": {"type": "string"},
                "pass_type": {"type": "string", "enum": ["STUDENT", "STAFF_REQUEST"]},
                "status": {"type": "string", "enum": ["OPEN", "CLOSED", "PENDING_APPROVAL"]},
                "legs": {"type": "array", "items": {"$ref": "#/definitions/Leg"}},
                "created_at": {"type": "string"},
                "last_updated_at": {"type": "string"},
                "closed_by": {"type": "string"},
                "closed_at": {"type": "string"},
                "duration_minutes": {"type": "integer"},
                "close_reason": {"type": "string"},
                "notification_level": {"type": "string", "enum": ["none", "student", "teacher", "admin"]}
            }
        },
        "Leg": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "leg_number": {"type": "integer"},
                "origin_location_id": {"type": "string"},
                "destination_location_id": {"type": "string"},
                "state": {"type": "string", "enum": ["OUT", "IN"]},
                "timestamp": {"type": "string"}
            }
        },
        "CreatePassRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "destination_location_id": {"type": "string"},
                "pass_type": {"type": "string", "enum": ["STUDENT", "STAFF_REQUEST"]}
            },
            "required": ["student_id", "destination_location_id"]
        },
        "ContinueRequest": {
            "type": "object",
            "properties": {
                "destination_location_id": {"type": "string"}
            },
            "required": ["destination_location_id"]
        },
        "EvaluationContext": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "origin_location_id": {"type": "string"},
                "destination_location_id": {"type": "string"},
                "pass_type": {"type": "string"}
            },
            "required": ["student_id", "origin_location_id", "destination_location_id"]
        },
        "SetClassroomPolicyRequest": {
            "type": "object",
            "properties": {
                "student_leave": {"type": "string", "enum": ["ALLOW", "REQUIRE_APPROVAL", "DISALLOW"]},
                "student_arrive": {"type": "string", "enum": ["ALLOW", "REQUIRE_APPROVAL", "DISALLOW"]},
                "staff_request": {"type": "string", "enum": ["ALLOW", "REQUIRE_APPROVAL", "DISALLOW"]},
                "responsible_staff_id": {"type": "string"}
            },
            "required": ["student_leave", "student_arrive", "staff_request", "responsible_staff_id"]
        },
        "SetOverrideRequest": {
            "type": "object",
            "properties": {
                "student_leave": {"type": "string"},
                "student_arrive": {"type": "string"},
                "staff_request": {"type": "string"}
            }
        },
        "GroupRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "polarity": {"type": "string", "enum": ["POSITIVE", "NEGATIVE"]}
            },
            "required": ["name", "polarity"]
        },
        "AddMemberRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"}
            },
            "required": ["student_id"]
        },
        "CreateRestrictionRequest": {
            "type": "object",
            "properties": {
                "scope": {"type": "string", "enum": ["GLOBAL", "CLASS_LEVEL"]},
                "location_id": {"type": "string"},
                "reason": {"type": "string"},
                "expires_at": {"type": "string"}
            },
            "required": ["scope", "reason"]
        },
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
