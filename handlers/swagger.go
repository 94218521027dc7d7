package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the sign-in service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>signon — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the OAuth sign-in endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "signon", "version": "v0.1.0" },
  "paths": {
    "/auth/signin/{provider}": {
      "get": {
        "summary": "Start OAuth sign-in with a provider (github, discord, google)",
        "parameters": [ { "name": "provider", "in": "path", "required": true, "schema": {"type":"string"} } ],
        "responses": { "302": { "description": "redirect to the provider authorization page" }, "404": { "description": "unknown provider" } }
      }
    },
    "/auth/callback/{provider}": {
      "get": {
        "summary": "OAuth callback: exchanges the code and applies the link decision",
        "parameters": [
          { "name": "provider", "in": "path", "required": true, "schema": {"type":"string"} },
          { "name": "code", "in": "query", "schema": {"type":"string"} },
          { "name": "state", "in": "query", "schema": {"type":"string"} }
        ],
        "responses": { "302": { "description": "redirect to the app, the linking page, or the error page" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Delete the current session and clear the cookie", "responses": { "200": { "description": "signed out" } } }
    },
    "/auth/linkaccount": {
      "get": {
        "summary": "Linking page payload: echoes the error or message query parameter",
        "parameters": [
          { "name": "error", "in": "query", "schema": {"type":"string"} },
          { "name": "message", "in": "query", "schema": {"type":"string"} }
        ],
        "responses": { "200": { "description": "error/message and display lines" } }
      }
    },
    "/auth/error": {
      "get": { "summary": "Generic sign-in failure page", "responses": { "200": { "description": "failure payload" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Current user profile", "responses": { "200": { "description": "user" }, "401": { "description": "no valid session" } } }
    },
    "/api/v1/me/accounts": {
      "get": { "summary": "Provider accounts linked to the current user", "responses": { "200": { "description": "accounts" }, "401": { "description": "no valid session" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
