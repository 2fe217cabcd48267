package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"mindvault/internal/models"
	"mindvault/internal/service/profile"
)

// Registry is the closed set of tools the provider may invoke. Every
// entry is built at construction from the profile field catalog, so the
// schema published to the provider and the executor's field handling are
// two views of the same definition.
type Registry struct {
	profile *profile.Service
	entries map[string]*entry
	order   []string
}

type entry struct {
	spec      models.RecordSpec
	invokable tool.InvokableTool
}

func NewRegistry(profileSvc *profile.Service) *Registry {
	r := &Registry{
		profile: profileSvc,
		entries: make(map[string]*entry),
	}
	for _, rec := range models.ProfileRecords {
		r.register(rec)
	}
	r.register(models.GoalRecord)
	return r
}

func (r *Registry) register(rec models.RecordSpec) {
	spec := rec
	info := toolInfo(spec)
	handler := func(ctx context.Context, args map[string]interface{}) (Result, error) {
		return r.run(ctx, spec, args)
	}
	r.entries[spec.Tool] = &entry{
		spec:      spec,
		invokable: utils.NewTool(info, handler),
	}
	r.order = append(r.order, spec.Tool)
}

// Execute locates and invokes the named tool. It never returns an error:
// unknown names, validation failures, handler errors and panics all come
// back as an error Result so one bad tool call cannot crash the
// orchestration loop.
func (r *Registry) Execute(ctx context.Context, userID int64, name string, args map[string]interface{}) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("tool %s panicked: %v", name, rec)
			res = Failure(fmt.Sprintf("tool execution failed: %v", rec))
		}
	}()

	e, ok := r.entries[name]
	if !ok {
		return Failure("tool not defined")
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return Failure(fmt.Sprintf("encode arguments: %v", err))
	}

	out, err := e.invokable.InvokableRun(WithUser(ctx, userID), string(payload))
	if err != nil {
		return Failure(err.Error())
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return Failure(fmt.Sprintf("decode tool output: %v", err))
	}
	return res
}

// run is the shared handler behind every registered tool.
func (r *Registry) run(ctx context.Context, rec models.RecordSpec, args map[string]interface{}) (Result, error) {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return Result{}, errors.New("no acting user in context")
	}

	creating := rec.Tool == models.GoalRecord.Tool
	fields, errs := profile.ValidateFields(rec, args, creating)
	if len(errs) > 0 {
		return Invalid(errs), nil
	}

	if creating {
		goal, err := r.profile.CreateGoal(ctx, userID, fields)
		if err != nil {
			return Result{}, err
		}
		return Success("goal created", goal), nil
	}

	merged, err := r.profile.Upsert(ctx, userID, rec, fields)
	if err != nil {
		return Result{}, err
	}
	label := strings.ReplaceAll(strings.Trim(rec.Path, "/"), "-", " ")
	return Success(label+" updated", merged), nil
}

// Infos exposes the eino tool descriptions, in registration order.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, toolInfo(r.entries[name].spec))
	}
	return infos
}

// Schemas renders the provider-facing JSON view of every tool, derived
// from the same field catalog the executor validates against.
func (r *Registry) Schemas() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, wireSchema(r.entries[name].spec))
	}
	return out
}

func toolInfo(rec models.RecordSpec) *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(rec.Fields))
	for _, f := range rec.Fields {
		params[f.Name] = &schema.ParameterInfo{
			Type:     dataType(f.Kind),
			Desc:     f.Desc,
			Required: f.Required,
			Enum:     f.Enum,
		}
	}
	return &schema.ToolInfo{
		Name:        rec.Tool,
		Desc:        rec.Desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func dataType(kind models.FieldKind) schema.DataType {
	switch kind {
	case models.FieldInteger:
		return schema.Integer
	case models.FieldNumber:
		return schema.Number
	default:
		return schema.String
	}
}

type wireProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type wireParameters struct {
	Type       string                  `json:"type"`
	Properties map[string]wireProperty `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  wireParameters `json:"parameters"`
}

func wireSchema(rec models.RecordSpec) json.RawMessage {
	params := wireParameters{
		Type:       "object",
		Properties: make(map[string]wireProperty, len(rec.Fields)),
	}
	for _, f := range rec.Fields {
		params.Properties[f.Name] = wireProperty{
			Type:        strings.ToLower(string(f.Kind)),
			Description: f.Desc,
			Enum:        f.Enum,
		}
		if f.Required {
			params.Required = append(params.Required, f.Name)
		}
	}
	data, err := json.Marshal(wireTool{Name: rec.Tool, Description: rec.Desc, Parameters: params})
	if err != nil {
		log.Printf("encode tool schema %s failed: %v", rec.Tool, err)
		return json.RawMessage("{}")
	}
	return data
}
