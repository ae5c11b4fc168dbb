// Package docs registers the OpenAPI document served under /swagger/.
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
        "/v1/submissions": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["tally"],
                "summary": "Submit a polling-station result form",
                "parameters": [
                    {"$ref": "#/parameters/UserID"},
                    {"$ref": "#/parameters/UserRole"},
                    {"$ref": "#/parameters/CandidatePosition"},
                    {"$ref": "#/parameters/ScopeLocation"},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/SubmitTallyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/SubmissionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Duplicate submission", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "422": {"description": "Evidence missing", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/submissions/{submission_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["tally"],
                "summary": "Get a submission with its result",
                "parameters": [{"in": "path", "name": "submission_id", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SubmissionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/submissions/{submission_id}/review": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["review"],
                "summary": "Approve, reject or request revision of a submission",
                "parameters": [
                    {"in": "path", "name": "submission_id", "type": "string", "required": true},
                    {"$ref": "#/parameters/UserID"},
                    {"$ref": "#/parameters/UserRole"},
                    {"$ref": "#/parameters/CandidatePosition"},
                    {"$ref": "#/parameters/ScopeLocation"},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/ReviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SubmissionResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/submissions/{submission_id}/reviews": {
            "get": {
                "produces": ["application/json"],
                "tags": ["review"],
                "summary": "List the review audit trail of a submission",
                "parameters": [{"in": "path", "name": "submission_id", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/review-queue": {
            "get": {
                "produces": ["application/json"],
                "tags": ["review"],
                "summary": "List submissions awaiting review",
                "parameters": [{"in": "query", "name": "filter", "type": "string", "enum": ["all", "pending", "flagged", "anomalies"]}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/aggregates/{location_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["aggregates"],
                "summary": "Aggregate verified results beneath a location",
                "parameters": [
                    {"in": "path", "name": "location_id", "type": "string", "required": true},
                    {"in": "query", "name": "level", "type": "string", "required": true, "enum": ["national", "county", "constituency", "ward", "station"]},
                    {"in": "query", "name": "position", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AggregateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/aggregates/{location_id}/export.xlsx": {
            "get": {
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["aggregates"],
                "summary": "Download an aggregate as a workbook",
                "parameters": [
                    {"in": "path", "name": "location_id", "type": "string", "required": true},
                    {"in": "query", "name": "level", "type": "string", "required": true},
                    {"in": "query", "name": "position", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}}
                }
            }
        }
    },
    "parameters": {
        "UserID": {"in": "header", "name": "X-User-Id", "type": "string", "required": true},
        "UserRole": {"in": "header", "name": "X-User-Role", "type": "string", "required": true, "enum": ["admin", "candidate", "agent"]},
        "CandidatePosition": {"in": "header", "name": "X-Candidate-Position", "type": "string"},
        "ScopeLocation": {"in": "header", "name": "X-Scope-Location", "type": "string"}
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "CandidateVote": {
            "type": "object",
            "properties": {
                "candidate_name": {"type": "string"},
                "party_name": {"type": "string"},
                "votes": {"type": "integer", "minimum": -1000000000, "maximum": 1000000000}
            }
        },
        "SubmitTallyRequest": {
            "type": "object",
            "required": ["station_id", "position", "channel", "candidate_votes"],
            "properties": {
                "station_id": {"type": "string"},
                "position": {"type": "string"},
                "channel": {"type": "string", "enum": ["photo", "manual"]},
                "evidence_ref": {"type": "string"},
                "registered_voters": {"type": "integer", "minimum": -1000000000, "maximum": 1000000000},
                "total_votes_cast": {"type": "integer", "minimum": -1000000000, "maximum": 1000000000},
                "valid_votes": {"type": "integer", "minimum": -1000000000, "maximum": 1000000000},
                "rejected_votes": {"type": "integer", "minimum": -1000000000, "maximum": 1000000000},
                "candidate_votes": {"type": "array", "items": {"$ref": "#/definitions/CandidateVote"}}
            }
        },
        "ReviewRequest": {
            "type": "object",
            "required": ["action"],
            "properties": {
                "action": {"type": "string", "enum": ["approve", "reject", "request_revision"]},
                "notes": {"type": "string"}
            }
        },
        "SubmissionResponse": {
            "type": "object",
            "properties": {
                "submission_id": {"type": "string"},
                "submitter_id": {"type": "string"},
                "station_id": {"type": "string"},
                "position": {"type": "string"},
                "channel": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "verified", "rejected", "flagged"]},
                "confidence_score": {"type": "integer"},
                "discrepancy_flag": {"type": "boolean"},
                "discrepancy_reason": {"type": "string"},
                "supersedes_id": {"type": "string"},
                "submitted_at": {"type": "string", "format": "date-time"},
                "verified_at": {"type": "string", "format": "date-time"}
            }
        },
        "AggregateResponse": {
            "type": "object",
            "properties": {
                "location_id": {"type": "string"},
                "level": {"type": "string"},
                "position": {"type": "string"},
                "stations_reporting": {"type": "integer"},
                "total_stations": {"type": "integer"},
                "turnout_percentage": {"type": "number"},
                "total_registered_voters": {"type": "integer"},
                "total_votes_cast": {"type": "integer"},
                "total_valid_votes": {"type": "integer"},
                "total_rejected_votes": {"type": "integer"},
                "candidates": {"type": "array", "items": {"type": "object"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "TallyHub API",
	Description:      "Polling-station tally submission, review and aggregation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
