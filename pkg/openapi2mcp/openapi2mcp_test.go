package openapi2mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ubermorgenland/yas-mcp/pkg/adjuster"
	"github.com/ubermorgenland/yas-mcp/pkg/logger"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

const petstoreJSON = `{
  "openapi": "3.0.3",
  "info": {"title": "Petstore", "version": "1.0.0"},
  "paths": {
    "/pets": {
      "parameters": [
        {"name": "X-Trace", "in": "header", "schema": {"type": "string"}}
      ],
      "get": {
        "summary": "List pets",
        "parameters": [
          {"name": "limit", "in": "query", "required": false, "schema": {"type": "integer"}},
          {"name": "tag", "in": "query"}
        ],
        "responses": {
          "200": {
            "description": "ok",
            "content": {
              "application/json": {
                "schema": {"type": "array", "items": {"$ref": "#/components/schemas/Pet"}}
              }
            }
          }
        }
      },
      "post": {
        "description": "<p>Create a <b>pet</b></p>",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {"schema": {"$ref": "#/components/schemas/Pet", "description": "ignored sibling"}}
          }
        },
        "responses": {"201": {"description": "created"}}
      }
    },
    "/pets/{petId}": {
      "get": {
        "summary": "Get pet",
        "responses": {
          "404": {"description": "missing", "content": {"application/problem+json": {"schema": {"type": "object"}}}},
          "200": {"description": "ok", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}}
        }
      },
      "delete": {
        "responses": {"204": {"description": "deleted"}}
      }
    }
  },
  "components": {
    "schemas": {
      "Pet": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "id": {"type": "integer", "format": "int64"},
          "name": {"type": "string", "description": "Pet name"},
          "status": {"type": "string", "enum": ["available", "sold"]},
          "category": {"$ref": "#/components/schemas/Category"},
          "meta": {"type": "object"}
        }
      },
      "Category": {
        "type": "object",
        "properties": {"label": {"type": "string"}}
      }
    },
    "securitySchemes": {
      "apiKey": {"type": "apiKey", "in": "header", "name": "X-API-Key"}
    }
  }
}`

const petstoreYAML = `
openapi: 3.0.0
info:
  title: Petstore
  version: 1.0.0
paths:
  /pets:
    get:
      description: List pets
      responses:
        200:
          description: ok
          content:
            application/json:
              schema:
                type: object
                properties:
                  count:
                    type: integer
  /pets/{petId}:
    put:
      requestBody:
        content:
          application/json:
            schema:
              type: object
              properties:
                name:
                  type: string
      responses:
        200:
          description: ok
`

func newTestCompiler(adj *adjuster.Adjuster) *OpenAPICompiler {
	return NewCompiler(adj, logger.Nop())
}

func decodeSchema(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	return m
}

func prop(t *testing.T, schema map[string]any, name string) map[string]any {
	t.Helper()
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %v", schema)
	}
	p, ok := props[name].(map[string]any)
	if !ok {
		t.Fatalf("property %q missing in %v", name, props)
	}
	return p
}

func requiredOf(schema map[string]any) []string {
	var out []string
	list, _ := schema["required"].([]any)
	for _, v := range list {
		out = append(out, v.(string))
	}
	return out
}

func TestCompileJSON(t *testing.T) {
	tools, err := newTestCompiler(nil).Compile(context.Background(), []byte(petstoreJSON))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var names []string
	for _, tool := range tools {
		names = append(names, tool.Tool.Name)
	}
	want := []string{"get_pets", "post_pets", "get_pets__petId__", "delete_pets__petId__"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}

	t.Run("query and header parameters", func(t *testing.T) {
		list := tools[0]
		if list.Tool.Description != "GET /pets - List pets" {
			t.Errorf("description = %q", list.Tool.Description)
		}
		if !reflect.DeepEqual(list.Route.MethodConfig.QueryParams, []string{"limit", "tag"}) {
			t.Errorf("query params = %v", list.Route.MethodConfig.QueryParams)
		}
		if !reflect.DeepEqual(list.Route.MethodConfig.HeaderParams, []string{"X-Trace"}) {
			t.Errorf("header params = %v", list.Route.MethodConfig.HeaderParams)
		}

		in := decodeSchema(t, list.Tool.RawInputSchema)
		if got := prop(t, in, "limit")["type"]; got != "integer" {
			t.Errorf("limit type = %v", got)
		}
		tag := prop(t, in, "tag")
		if tag["type"] != "string" || tag["description"] != "Query parameter: tag" {
			t.Errorf("tag = %v", tag)
		}
		if got := prop(t, in, "X-Trace")["description"]; got != "Header parameter: X-Trace" {
			t.Errorf("header description = %v", got)
		}
		if _, ok := in["required"]; ok {
			t.Errorf("no parameter is required: %v", in["required"])
		}
	})

	t.Run("output schema", func(t *testing.T) {
		out := decodeSchema(t, tools[0].Tool.RawOutputSchema)
		if out["type"] != "array" {
			t.Errorf("output = %v", out)
		}
		if _, ok := out["http_status"]; ok {
			t.Errorf("array output must not carry http_status: %v", out)
		}
		if tools[0].Route.Headers["Accept"] != "application/json" {
			t.Errorf("accept = %q", tools[0].Route.Headers["Accept"])
		}

		single := decodeSchema(t, tools[2].Tool.RawOutputSchema)
		if single["type"] != "object" || single["http_status"] != float64(200) {
			t.Errorf("output = %v", single)
		}
		if tools[3].Tool.RawOutputSchema != nil {
			t.Errorf("204 without content has no output schema")
		}
	})

	t.Run("body", func(t *testing.T) {
		create := tools[1]
		if create.Tool.Description != "POST /pets - Create a pet" {
			t.Errorf("description = %q", create.Tool.Description)
		}
		if create.Route.MethodConfig.BodyField != BodyField {
			t.Errorf("body field = %q", create.Route.MethodConfig.BodyField)
		}
		in := decodeSchema(t, create.Tool.RawInputSchema)
		if !reflect.DeepEqual(requiredOf(in), []string{"body"}) {
			t.Errorf("required = %v", in["required"])
		}
		body := prop(t, in, "body")
		if body["type"] != "object" {
			t.Fatalf("body = %v", body)
		}
		if !reflect.DeepEqual(requiredOf(body), []string{"name"}) {
			t.Errorf("body required = %v", body["required"])
		}
		if got := prop(t, body, "status")["enum"]; !reflect.DeepEqual(got, []any{"available", "sold"}) {
			t.Errorf("enum = %v", got)
		}
		// second hop of references degrades
		if got := prop(t, body, "category")["type"]; got != "string" {
			t.Errorf("nested ref type = %v", got)
		}
		if _, ok := prop(t, body, "meta")["properties"]; !ok {
			t.Errorf("empty object lost its properties map")
		}
	})

	t.Run("path parameters", func(t *testing.T) {
		get := tools[2]
		in := decodeSchema(t, get.Tool.RawInputSchema)
		petID := prop(t, in, "petId")
		if petID["type"] != "string" || petID["description"] != "Path parameter: petId" {
			t.Errorf("petId = %v", petID)
		}
		if !reflect.DeepEqual(requiredOf(in), []string{"petId"}) {
			t.Errorf("required = %v", in["required"])
		}
		if _, ok := get.Route.Parameters["petId"]; !ok {
			t.Errorf("route parameters = %v", get.Route.Parameters)
		}
		if tools[3].Tool.Description != "DELETE /pets/{petId} -" {
			t.Errorf("description = %q", tools[3].Tool.Description)
		}
	})

	t.Run("annotations", func(t *testing.T) {
		if a := tools[0].Tool.Annotations; a.ReadOnlyHint == nil || !*a.ReadOnlyHint {
			t.Errorf("GET should be read-only")
		}
		if a := tools[3].Tool.Annotations; a.DestructiveHint == nil || !*a.DestructiveHint {
			t.Errorf("DELETE should be destructive")
		}
	})
}

func TestCompileYAML(t *testing.T) {
	tools, err := newTestCompiler(nil).Compile(context.Background(), []byte(petstoreYAML))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools", len(tools))
	}
	if tools[0].Tool.Name != "get_pets" || tools[1].Tool.Name != "put_pets__petId__" {
		t.Errorf("names = %s, %s", tools[0].Tool.Name, tools[1].Tool.Name)
	}
	out := decodeSchema(t, tools[0].Tool.RawOutputSchema)
	if prop(t, out, "count")["type"] != "integer" {
		t.Errorf("output = %v", out)
	}
	in := decodeSchema(t, tools[1].Tool.RawInputSchema)
	if !reflect.DeepEqual(requiredOf(in), []string{"body", "petId"}) {
		t.Errorf("required = %v", in["required"])
	}
}

func TestCompileRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"garbage":     "{not json: [",
		"scalar":      "just a string",
		"swagger two": `{"swagger": "2.0", "paths": {}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestCompiler(nil).Compile(context.Background(), []byte(doc))
			if !server.IsType(err, server.ErrorTypeParse) {
				t.Fatalf("err = %v, want parse error", err)
			}
		})
	}
}

func TestCompileUnresolvedReferenceDegrades(t *testing.T) {
	doc := `{
	  "openapi": "3.0.0",
	  "info": {"title": "t", "version": "1"},
	  "paths": {
	    "/things": {
	      "post": {
	        "requestBody": {"content": {"application/json": {"schema": {"$ref": "#/components/schemas/Missing"}}}},
	        "responses": {"200": {"description": "ok"}}
	      }
	    }
	  }
	}`
	tools, err := newTestCompiler(nil).Compile(context.Background(), []byte(doc))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	in := decodeSchema(t, tools[0].Tool.RawInputSchema)
	if got := prop(t, in, "body")["type"]; got != "string" {
		t.Errorf("body type = %v", got)
	}
}

func TestCompileAppliesAdjustments(t *testing.T) {
	adj := adjuster.NewFromAdjustments(logger.Nop(), adjuster.Adjustments{
		Routes: []adjuster.RouteSelection{
			{Path: "/pets/", Methods: []string{"get", "POST"}},
		},
		Descriptions: []adjuster.RouteDescription{
			{Path: "/pets", Updates: []adjuster.RouteFieldUpdate{{Method: "POST", NewDescription: "Adopt a pet"}}},
		},
	})
	tools, err := newTestCompiler(adj).Compile(context.Background(), []byte(petstoreJSON))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	if tools[1].Tool.Description != "POST /pets - Adopt a pet" {
		t.Errorf("description = %q", tools[1].Tool.Description)
	}
	if tools[1].Route.Description != "Adopt a pet" {
		t.Errorf("route description = %q", tools[1].Route.Description)
	}
}

func TestCompileFormBodies(t *testing.T) {
	doc := `{
	  "openapi": "3.0.0",
	  "info": {"title": "t", "version": "1"},
	  "paths": {
	    "/upload": {
	      "post": {
	        "requestBody": {"content": {"multipart/form-data": {
	          "schema": {"type": "object", "properties": {
	            "file": {"type": "string", "format": "binary"},
	            "note": {"type": "string"}
	          }},
	          "encoding": {"file": {"contentType": "image/png, image/jpeg"}}
	        }}},
	        "responses": {"200": {"description": "ok"}}
	      }
	    },
	    "/login": {
	      "post": {
	        "requestBody": {"content": {"application/x-www-form-urlencoded": {
	          "schema": {"type": "object", "properties": {"user": {"type": "string"}}}
	        }}},
	        "responses": {"200": {"description": "ok"}}
	      }
	    }
	  }
	}`
	tools, err := newTestCompiler(nil).Compile(context.Background(), []byte(doc))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	login, upload := tools[0].Route, tools[1].Route

	if login.Headers["Content-Type"] != mediaForm {
		t.Errorf("login content type = %q", login.Headers["Content-Type"])
	}
	if !reflect.DeepEqual(login.MethodConfig.FormFields, []string{"user"}) {
		t.Errorf("login fields = %v", login.MethodConfig.FormFields)
	}

	if upload.Headers["Content-Type"] != mediaMultipart {
		t.Errorf("upload content type = %q", upload.Headers["Content-Type"])
	}
	fu := upload.MethodConfig.FileUpload
	if fu == nil || fu.FieldName != "file" {
		t.Fatalf("file upload = %+v", fu)
	}
	if !reflect.DeepEqual(fu.AllowedTypes, []string{"image/png", "image/jpeg"}) {
		t.Errorf("allowed types = %v", fu.AllowedTypes)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	spec := filepath.Join(dir, "spec.json")
	if err := os.WriteFile(spec, []byte(petstoreJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	adjPath := filepath.Join(dir, "adjustments.yaml")
	if err := os.WriteFile(adjPath, []byte("routes:\n  - path: /pets\n    methods: [GET]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCompiler(adjuster.New(logger.Nop()))
	tools, err := c.Init(context.Background(), spec, adjPath)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(tools) != 1 || tools[0].Tool.Name != "get_pets" {
		t.Errorf("tools = %v", tools)
	}

	_, err = newTestCompiler(nil).Init(context.Background(), filepath.Join(dir, "nope.json"), "")
	if !server.IsType(err, server.ErrorTypeParse) {
		t.Errorf("missing spec err = %v", err)
	}
}

func TestInitWithSpecReader(t *testing.T) {
	var asked string
	c := NewCompiler(nil, logger.Nop(), WithSpecReader(func(_ context.Context, source string) ([]byte, error) {
		asked = source
		return []byte(petstoreYAML), nil
	}))
	tools, err := c.Init(context.Background(), "db:petstore", "")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if asked != "db:petstore" || len(tools) != 2 {
		t.Errorf("asked %q, got %d tools", asked, len(tools))
	}
}

func TestCompileHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestCompiler(nil).Compile(ctx, []byte(petstoreJSON)); err == nil {
		t.Fatal("expected context error")
	}
}

func TestPrintToolSummary(t *testing.T) {
	tools, err := newTestCompiler(nil).Compile(context.Background(), []byte(petstoreJSON))
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	PrintToolSummary(&b, tools)
	out := b.String()
	for _, want := range []string{"Total tools: 4", "GET: 2", "POST: 1", "DELETE: 1", "get_pets__petId__"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestInspect(t *testing.T) {
	info, err := Inspect([]byte(petstoreJSON))
	if err != nil {
		t.Fatal(err)
	}
	want := DocumentInfo{Title: "Petstore", Version: "1.0.0", Format: "json", Operations: 4}
	if info != want {
		t.Errorf("Inspect = %+v, want %+v", info, want)
	}
	if _, err := Inspect([]byte("swagger: '2.0'")); err == nil {
		t.Error("swagger 2 document accepted")
	}
}
