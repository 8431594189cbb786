// Package docs registra la definición OpenAPI que sirve /swagger.
// Se mantiene a mano con el layout de swag; docs_test.go verifica que cada
// anotación @Router de los handlers tenga su operación acá y viceversa.
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
        "/me": {
            "get": {"tags": ["users"], "summary": "Perfil del usuario autenticado", "responses": {"200": {"description": "OK"}, "401": {"description": "unauthorized"}}},
            "patch": {"tags": ["users"], "summary": "Actualizar perfil", "responses": {"200": {"description": "OK"}}}
        },
        "/me/settings": {
            "patch": {"tags": ["users"], "summary": "Actualizar settings", "responses": {"200": {"description": "OK"}}}
        },
        "/me/avatar": {
            "post": {"tags": ["users"], "summary": "Subir avatar", "consumes": ["multipart/form-data"], "responses": {"200": {"description": "OK"}, "413": {"description": "file too large"}}}
        },
        "/me/invitations": {
            "get": {"tags": ["members"], "summary": "Invitaciones pendientes para mi email", "responses": {"200": {"description": "OK"}}}
        },
        "/pets": {
            "get": {"tags": ["pets"], "summary": "Mis mascotas", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["pets"], "summary": "Crear mascota", "responses": {"201": {"description": "Created"}, "400": {"description": "invalid input"}}}
        },
        "/pets/{petID}": {
            "get": {"tags": ["pets"], "summary": "Ver mascota", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}}},
            "patch": {"tags": ["pets"], "summary": "Editar mascota", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["pets"], "summary": "Borrar mascota", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}, "403": {"description": "forbidden"}}}
        },
        "/pets/{petID}/members": {
            "get": {"tags": ["members"], "summary": "Miembros de la mascota", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["members"], "summary": "Invitar miembro", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}, "409": {"description": "already invited"}}}
        },
        "/pets/{petID}/members/{memberID}": {
            "delete": {"tags": ["members"], "summary": "Quitar un miembro", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}, {"type": "string", "name": "memberID", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}, "403": {"description": "forbidden"}, "409": {"description": "owners cannot be removed, demote first"}}}
        },
        "/pets/{petID}/members/{memberID}/transfer": {
            "post": {"tags": ["members"], "summary": "Transferir ownership", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}, {"type": "string", "name": "memberID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "409": {"description": "conflict"}}}
        },
        "/pets/{petID}/entries": {
            "get": {"tags": ["entries"], "summary": "Entradas de la mascota", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}, {"type": "string", "name": "cursor", "in": "query"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["entries"], "summary": "Crear entrada", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}}}
        },
        "/pets/{petID}/entries/{entryID}/images": {
            "post": {"tags": ["entries"], "summary": "Adjuntar imágenes", "consumes": ["multipart/form-data"], "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}, {"type": "string", "name": "entryID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "409": {"description": "too many images"}}}
        },
        "/pets/{petID}/tasks": {
            "get": {"tags": ["tasks"], "summary": "Tareas propias", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["tasks"], "summary": "Crear tarea", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}}}
        },
        "/pets/{petID}/tasks/order": {
            "put": {"tags": ["tasks"], "summary": "Reordenar tareas", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/pets/{petID}/tasks/tags": {
            "get": {"tags": ["tasks"], "summary": "Vocabulario de etiquetas", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/pets/{petID}/friends": {
            "get": {"tags": ["friends"], "summary": "Amigos de la mascota", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}, {"type": "string", "name": "sort", "in": "query"}], "responses": {"200": {"description": "OK"}}}
        },
        "/pets/{petID}/weights": {
            "get": {"tags": ["weights"], "summary": "Historial de peso", "parameters": [{"type": "string", "name": "petID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Pet Diary API",
	Description:      "Diario compartido de mascotas: entradas, tareas, amigos, peso y miembros con roles.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
