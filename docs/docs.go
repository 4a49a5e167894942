// Package docs serves a hand-maintained subset of the OpenAPI description,
// covering the settlement and auth routes. Run
// `swag init -g cmd/server/main.go` to generate the full description from the
// handler annotations.
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
        "/auth/otp/send": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Send OTP",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/services.SendOTPRequest"}}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/batches/{id}/submit": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Batches"],
                "summary": "Submit batch on threshold",
                "parameters": [{"type": "string", "description": "Batch ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "422": {"description": "Threshold exceeded", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/batch/pay": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Payments"],
                "summary": "Record batch payment",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/services.PaymentRequest"}}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/transactions/{id}/approve": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Transactions"],
                "summary": "Approve transaction",
                "parameters": [{"type": "string", "description": "Transaction ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "retryAfter": {"type": "integer"}
            }
        },
        "services.SendOTPRequest": {
            "type": "object",
            "required": ["phoneNumber"],
            "properties": {
                "phoneNumber": {"type": "string", "example": "+919812345678"},
                "captchaToken": {"type": "string"}
            }
        },
        "services.PaymentRequest": {
            "type": "object",
            "required": ["batchId", "transactionReference", "paymentMode", "transactionDate"],
            "properties": {
                "batchId": {"type": "string"},
                "transactionReference": {"type": "string", "example": "UTR202603010001"},
                "paymentMode": {"type": "string", "enum": ["neft", "rtgs", "imps", "upi", "cheque", "dd", "cash"]},
                "remarks": {"type": "string"},
                "transactionDate": {"type": "string", "example": "2026-03-01"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "GridBill Billing Portal API",
	Description:      "Multi-tenant electricity bill approval, batching and settlement",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
