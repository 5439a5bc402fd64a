package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operations that can be made to fail on a MemoryClient
const (
	OpList     = "list"
	OpGet      = "get"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpUpdateMe = "update_me"
)

// FunctionHandler produces the result of a serverless function call
type FunctionHandler func(payload map[string]interface{}) (interface{}, error)

// FunctionCall records one Invoke
type FunctionCall struct {
	Name    string
	Payload map[string]interface{}
}

// MemoryClient is an in-process Client used for local development and tests.
// Records are held as decoded JSON objects keyed by entity and id.
type MemoryClient struct {
	mu        sync.Mutex
	records   map[string]map[string]map[string]interface{}
	order     map[string][]string
	failures  map[string]error
	handlers  map[string]FunctionHandler
	calls     []FunctionCall
	getCounts map[string]int

	// BeforeGet runs before every Get with the number of previous Gets of the same record
	BeforeGet func(entity, id string, previous int)
}

// NewMemoryClient creates an empty in-memory backend
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		records:   make(map[string]map[string]map[string]interface{}),
		order:     make(map[string][]string),
		failures:  make(map[string]error),
		handlers:  make(map[string]FunctionHandler),
		getCounts: make(map[string]int),
	}
}

// FailOn makes op on entity (or function name for Invoke) return err
func (m *MemoryClient) FailOn(op, entity string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+":"+entity] = err
}

// FailFunction makes Invoke of name return err
func (m *MemoryClient) FailFunction(name string, err error) {
	m.FailOn("invoke", name, err)
}

// HandleFunction registers the result of a serverless function
func (m *MemoryClient) HandleFunction(name string, h FunctionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Seed stores a record as-is, replacing any record with the same id
func (m *MemoryClient) Seed(entity string, record interface{}) (string, error) {
	obj, err := toObject(record)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(entity, obj), nil
}

// Record decodes a stored record into out
func (m *MemoryClient) Record(entity, id string, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.records[entity][id]
	if !ok {
		return &APIError{StatusCode: http.StatusNotFound, Message: entity + " " + id + " not found"}
	}
	return fromObject(obj, out)
}

// Records decodes every stored record of entity into out, in insertion order
func (m *MemoryClient) Records(entity string, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]map[string]interface{}, 0, len(m.order[entity]))
	for _, id := range m.order[entity] {
		items = append(items, m.records[entity][id])
	}
	return fromObject(items, out)
}

// Calls returns the recorded Invoke calls for name, or all calls when name is empty
func (m *MemoryClient) Calls(name string) []FunctionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []FunctionCall
	for _, c := range m.calls {
		if name == "" || c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (m *MemoryClient) failure(op, entity string) error {
	return m.failures[op+":"+entity]
}

func (m *MemoryClient) put(entity string, obj map[string]interface{}) string {
	id, _ := obj["id"].(string)
	if id == "" {
		id = uuid.New().String()
		obj["id"] = id
	}
	if _, ok := obj["created_date"]; !ok {
		obj["created_date"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if m.records[entity] == nil {
		m.records[entity] = make(map[string]map[string]interface{})
	}
	if _, exists := m.records[entity][id]; !exists {
		m.order[entity] = append(m.order[entity], id)
	}
	m.records[entity][id] = obj
	return id
}

// List returns records matching every filter field, sorted and limited
func (m *MemoryClient) List(ctx context.Context, entity string, params *ListParams, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpList, entity); err != nil {
		return err
	}
	if params == nil {
		params = &ListParams{}
	}

	filter, err := toObject(params.Filter)
	if err != nil {
		return err
	}

	items := make([]map[string]interface{}, 0)
	for _, id := range m.order[entity] {
		rec := m.records[entity][id]
		if matches(rec, filter) {
			items = append(items, rec)
		}
	}

	if params.Sort != "" {
		field, desc := strings.TrimPrefix(params.Sort, "-"), strings.HasPrefix(params.Sort, "-")
		sort.SliceStable(items, func(i, j int) bool {
			c := compareValues(items[i][field], items[j][field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if params.Limit > 0 && len(items) > params.Limit {
		items = items[:params.Limit]
	}

	return fromObject(items, out)
}

// Get returns one record
func (m *MemoryClient) Get(ctx context.Context, entity, id string, out interface{}) error {
	m.mu.Lock()
	hook := m.BeforeGet
	key := entity + "/" + id
	previous := m.getCounts[key]
	m.getCounts[key]++
	m.mu.Unlock()

	if hook != nil {
		hook(entity, id, previous)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpGet, entity); err != nil {
		return err
	}
	obj, ok := m.records[entity][id]
	if !ok {
		return &APIError{StatusCode: http.StatusNotFound, Message: entity + " " + id + " not found"}
	}
	return fromObject(obj, out)
}

// Create stores a new record, assigning an id when missing
func (m *MemoryClient) Create(ctx context.Context, entity string, in interface{}, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpCreate, entity); err != nil {
		return err
	}

	obj, err := toObject(in)
	if err != nil {
		return err
	}
	if id, _ := obj["id"].(string); id != "" {
		if _, exists := m.records[entity][id]; exists {
			return &APIError{StatusCode: http.StatusConflict, Message: entity + " " + id + " already exists"}
		}
	}
	m.put(entity, obj)

	if out == nil {
		return nil
	}
	return fromObject(obj, out)
}

// Update merges fields onto an existing record
func (m *MemoryClient) Update(ctx context.Context, entity, id string, fields map[string]interface{}, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpUpdate, entity); err != nil {
		return err
	}
	return m.update(entity, id, fields, out)
}

// UpdateMe merges fields onto the User record
func (m *MemoryClient) UpdateMe(ctx context.Context, userID string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpUpdateMe, EntityUser); err != nil {
		return err
	}
	return m.update(EntityUser, userID, fields, nil)
}

func (m *MemoryClient) update(entity, id string, fields map[string]interface{}, out interface{}) error {
	obj, ok := m.records[entity][id]
	if !ok {
		return &APIError{StatusCode: http.StatusNotFound, Message: entity + " " + id + " not found"}
	}
	patch, err := toObject(fields)
	if err != nil {
		return err
	}
	for k, v := range patch {
		obj[k] = v
	}
	if out == nil {
		return nil
	}
	return fromObject(obj, out)
}

// Invoke records the call and returns the registered handler result, or {"success": true}
func (m *MemoryClient) Invoke(ctx context.Context, function string, payload interface{}, out interface{}) error {
	args, err := toObject(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.calls = append(m.calls, FunctionCall{Name: function, Payload: args})
	failErr := m.failure("invoke", function)
	handler := m.handlers[function]
	m.mu.Unlock()

	if failErr != nil {
		return failErr
	}

	var result interface{} = map[string]interface{}{"success": true}
	if handler != nil {
		if result, err = handler(args); err != nil {
			return err
		}
	}

	if out == nil {
		return nil
	}
	return fromObject(result, out)
}

func matches(rec, filter map[string]interface{}) bool {
	for k, want := range filter {
		if compareValues(rec[k], want) != 0 {
			return false
		}
	}
	return true
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	if b == nil {
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toObject(v interface{}) (map[string]interface{}, error) {
	obj := make(map[string]interface{})
	if v == nil {
		return obj, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	if string(raw) == "null" {
		return obj, nil
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	return obj, nil
}

func fromObject(v interface{}, out interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}
