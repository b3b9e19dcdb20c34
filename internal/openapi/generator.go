package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/cathouse/taskmanager/internal/command"
)

// Security scheme names.
const (
	SchemeServiceKey = "ServiceKey"
	SchemeAdminKey   = "AdminKey"
)

// Generate builds the OpenAPI 3.1 document for the service. The action
// enum on CommandRequest is taken from actions.
func Generate(version, baseURL string, actions []command.Action) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Task Manager API",
			Description: "Universal command endpoint and service key administration.",
			Version:     version,
		},
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes[SchemeServiceKey] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        "X-Service-Key",
			Description: "Service key issued to a client application (sk_{env}_{64 hex}).",
		},
	}
	doc.Components.SecuritySchemes[SchemeAdminKey] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        "X-Admin-Key",
			Description: "Statically configured admin key.",
		},
	}

	addSchemas(doc, actions)

	doc.Paths = openapi3.NewPaths()
	doc.Paths.Set("/health", &openapi3.PathItem{Get: healthOperation()})
	doc.Paths.Set("/execute", &openapi3.PathItem{Post: executeOperation(actions)})
	doc.Paths.Set("/admin/service-keys", &openapi3.PathItem{
		Get:  listKeysOperation(),
		Post: issueKeyOperation(),
	})
	doc.Paths.Set("/admin/service-keys/{key_id}", &openapi3.PathItem{Delete: revokeKeyOperation()})
	doc.Paths.Set("/admin/rotate-key", &openapi3.PathItem{Post: rotateKeyOperation()})

	return doc
}

func addSchemas(doc *openapi3.T, actions []command.Action) {
	s := doc.Components.Schemas

	s["ErrorResponse"] = object(openapi3.Schemas{"detail": str()}, "detail")
	s["FieldError"] = object(openapi3.Schemas{
		"loc":  array(str()),
		"msg":  str(),
		"type": str(),
	}, "loc", "msg", "type")
	s["ValidationErrorResponse"] = object(openapi3.Schemas{
		"detail": array(ref("FieldError")),
	}, "detail")

	action := str()
	for _, a := range actions {
		action.Value.Enum = append(action.Value.Enum, a.Name)
	}
	s["CommandRequest"] = object(openapi3.Schemas{
		"action":  action,
		"user_id": str(),
		"payload": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
	}, "action", "user_id")

	s["CommandResponse"] = object(openapi3.Schemas{
		"success":   {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
		"data":      {Value: &openapi3.Schema{Type: &openapi3.Types{"object", "null"}}},
		"error":     {Value: &openapi3.Schema{Type: &openapi3.Types{"string", "null"}}},
		"timestamp": dateTime(),
	}, "success", "data", "error", "timestamp")

	keyName := str()
	keyName.Value.MinLength = 3
	maxLen := uint64(100)
	keyName.Value.MaxLength = &maxLen
	keyName.Value.Pattern = "^[a-z0-9-]+$"

	env := str()
	env.Value.Enum = []interface{}{"prod", "dev"}

	s["ServiceKeyCreate"] = object(openapi3.Schemas{"key_name": keyName, "environment": env}, "key_name", "environment")
	s["ServiceKeyRotate"] = object(openapi3.Schemas{"key_name": keyName}, "key_name")
	s["ServiceKeyIssued"] = object(openapi3.Schemas{
		"id":          uuidStr(),
		"key_name":    str(),
		"service_key": str(),
		"created_at":  dateTime(),
	}, "id", "key_name", "service_key", "created_at")
	s["ServiceKeyRotated"] = object(openapi3.Schemas{
		"new_key":            str(),
		"old_key_expires_at": dateTime(),
	}, "new_key", "old_key_expires_at")
	s["ServiceKey"] = object(openapi3.Schemas{
		"id":          uuidStr(),
		"key_name":    str(),
		"generation":  {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
		"key_prefix":  str(),
		"environment": env,
		"active":      {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
		"created_at":  dateTime(),
		"expires_at":  {Value: &openapi3.Schema{Type: &openapi3.Types{"string", "null"}, Format: "date-time"}},
	})
	s["ServiceKeyList"] = object(openapi3.Schemas{
		"keys":  array(ref("ServiceKey")),
		"count": {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
	}, "keys", "count")
	s["Health"] = object(openapi3.Schemas{
		"status":    str(),
		"version":   str(),
		"timestamp": dateTime(),
	})
}

func healthOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"system"},
		Summary:     "Liveness check",
		OperationID: "health",
		Security:    &openapi3.SecurityRequirements{},
		Responses:   newResponses(response(200, "Service is up", ref("Health"))),
	}
}

func executeOperation(actions []command.Action) *openapi3.Operation {
	desc := "Dispatches a command to the named action. Handler failures that were anticipated " +
		"use the HTTP status; unanticipated ones return 200 with success=false.\n\nActions:\n"
	for _, a := range actions {
		desc += "- `" + a.Name + "`: " + a.Description + "\n"
	}
	return &openapi3.Operation{
		Tags:        []string{"commands"},
		Summary:     "Execute a command",
		Description: desc,
		OperationID: "execute",
		Security:    &openapi3.SecurityRequirements{{SchemeServiceKey: {}}},
		RequestBody: jsonBody("Command to execute", ref("CommandRequest")),
		Responses: newResponses(
			response(200, "Command envelope", ref("CommandResponse")),
			response(400, "Rejected by the action", ref("ErrorResponse")),
			response(401, "Missing, invalid or expired service key", ref("ErrorResponse")),
			response(404, "Unknown action or missing resource", ref("ErrorResponse")),
			response(422, "Malformed request", ref("ValidationErrorResponse")),
			response(500, "Internal server error", ref("ErrorResponse")),
		),
	}
}

func issueKeyOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Issue a service key",
		Description: "The plaintext service_key is only ever returned by this call.",
		OperationID: "issueServiceKey",
		Security:    &openapi3.SecurityRequirements{{SchemeAdminKey: {}}},
		RequestBody: jsonBody("Key to issue", ref("ServiceKeyCreate")),
		Responses: newResponses(
			response(201, "Key issued", ref("ServiceKeyIssued")),
			response(400, "Key name already exists", ref("ErrorResponse")),
			response(401, "Missing or invalid admin key", ref("ErrorResponse")),
			response(422, "Malformed request", ref("ValidationErrorResponse")),
		),
	}
}

func listKeysOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "List service keys",
		OperationID: "listServiceKeys",
		Security:    &openapi3.SecurityRequirements{{SchemeAdminKey: {}}},
		Responses: newResponses(
			response(200, "Credential records without secrets", ref("ServiceKeyList")),
			response(401, "Missing or invalid admin key", ref("ErrorResponse")),
		),
	}
}

func revokeKeyOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Revoke a service key",
		OperationID: "revokeServiceKey",
		Security:    &openapi3.SecurityRequirements{{SchemeAdminKey: {}}},
		Parameters: openapi3.Parameters{
			{Value: openapi3.NewPathParameter("key_id").WithSchema(uuidStr().Value)},
		},
		Responses: newResponses(
			response(204, "Key revoked", nil),
			response(401, "Missing or invalid admin key", ref("ErrorResponse")),
			response(404, "Key not found", ref("ErrorResponse")),
		),
	}
}

func rotateKeyOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Rotate a service key",
		Description: "Issues a new secret under the same name. The previous secret keeps validating until old_key_expires_at.",
		OperationID: "rotateServiceKey",
		Security:    &openapi3.SecurityRequirements{{SchemeAdminKey: {}}},
		RequestBody: jsonBody("Key to rotate", ref("ServiceKeyRotate")),
		Responses: newResponses(
			response(200, "Key rotated", ref("ServiceKeyRotated")),
			response(401, "Missing or invalid admin key", ref("ErrorResponse")),
			response(404, "No active key under that name", ref("ErrorResponse")),
			response(422, "Malformed request", ref("ValidationErrorResponse")),
		),
	}
}

type responseSpec struct {
	code   int
	desc   string
	schema *openapi3.SchemaRef
}

func response(code int, desc string, schema *openapi3.SchemaRef) *responseSpec {
	return &responseSpec{code: code, desc: desc, schema: schema}
}

func newResponses(specs ...*responseSpec) *openapi3.Responses {
	opts := make([]openapi3.NewResponsesOption, 0, len(specs))
	for _, rs := range specs {
		r := openapi3.NewResponse().WithDescription(rs.desc)
		if rs.schema != nil {
			r.Content = openapi3.NewContentWithJSONSchemaRef(rs.schema)
		}
		opts = append(opts, openapi3.WithStatus(rs.code, &openapi3.ResponseRef{Value: r}))
	}
	return openapi3.NewResponses(opts...)
}

func jsonBody(desc string, schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: desc,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

func object(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}}
}

func array(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func str() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func uuidStr() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "uuid"}}
}

func dateTime() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}}
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}
