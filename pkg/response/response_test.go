package response

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccess_JSONFormat(t *testing.T) {
	raw, err := json.Marshal(Success(map[string]string{"redirect_url": "/dashboard"}))
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, true, parsed["success"])
	assert.Equal(t, map[string]interface{}{"redirect_url": "/dashboard"}, parsed["data"])
	assert.NotContains(t, parsed, "error")
}

func TestError_JSONFormat(t *testing.T) {
	raw, err := json.Marshal(Error(ErrCodeNotFound, "Survey not found"))
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, false, parsed["success"])
	assert.NotContains(t, parsed, "data")

	info := parsed["error"].(map[string]interface{})
	assert.Equal(t, ErrCodeNotFound, info["code"])
	assert.Equal(t, "Survey not found", info["message"])
	assert.NotContains(t, info, "details")
}

func TestStepIncomplete(t *testing.T) {
	resp := StepIncomplete(2, map[string]string{"organisation_type_other": "required"})

	require.NotNil(t, resp.Error)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeStepIncomplete, resp.Error.Code)
	assert.Equal(t, "Step 2 is incomplete", resp.Error.Message)
	assert.Equal(t, "required", resp.Error.Details["organisation_type_other"])
}

func TestBuilders_DefaultMessages(t *testing.T) {
	tests := []struct {
		name    string
		resp    *Response
		code    string
		message string
	}{
		{"BadRequest", BadRequest(""), ErrCodeBadRequest, "Invalid request"},
		{"Unauthorized", Unauthorized(""), ErrCodeUnauthorized, "Authentication required"},
		{"Forbidden", Forbidden(""), ErrCodeForbidden, "Access denied"},
		{"NotFound", NotFound(""), ErrCodeNotFound, "Resource not found"},
		{"InternalError", InternalError(""), ErrCodeInternalError, "An internal error occurred"},
		{"ServiceUnavailable", ServiceUnavailable(""), ErrCodeServiceUnavailable, "Service temporarily unavailable"},
		{"UpstreamFailed", UpstreamFailed(""), ErrCodeUpstreamFailed, "The membership platform did not respond"},
		{"custom message kept", NotFound("Invite not found"), ErrCodeNotFound, "Invite not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.resp.Error)
			assert.Equal(t, tt.code, tt.resp.Error.Code)
			assert.Equal(t, tt.message, tt.resp.Error.Message)
		})
	}
}

func TestPaginated(t *testing.T) {
	tests := []struct {
		name       string
		perPage    int
		total      int64
		totalPages int
	}{
		{"exact pages", 10, 30, 3},
		{"partial last page", 10, 31, 4},
		{"empty", 10, 0, 0},
		{"zero per page", 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Paginated([]string{}, 1, tt.perPage, tt.total)

			require.NotNil(t, resp.Meta)
			assert.True(t, resp.Success)
			assert.Equal(t, tt.total, resp.Meta.Total)
			assert.Equal(t, tt.totalPages, resp.Meta.TotalPages)
		})
	}
}

func TestPaginated_JSONFormat(t *testing.T) {
	raw, err := json.Marshal(PaginatedFromParams([]int{1, 2}, PaginationParams{Page: 2, PerPage: 2}, 5))
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, map[string]interface{}{
		"page":        float64(2),
		"per_page":    float64(2),
		"total":       float64(5),
		"total_pages": float64(3),
	}, parsed["meta"])

	raw, err = json.Marshal(Success("ok"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "meta")
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		perPage  int
		expected PaginationParams
		offset   int
	}{
		{"defaults", 0, 0, PaginationParams{Page: 1, PerPage: 20}, 0},
		{"second page", 2, 10, PaginationParams{Page: 2, PerPage: 10}, 10},
		{"negative page", -3, 5, PaginationParams{Page: 1, PerPage: 5}, 0},
		{"capped per page", 3, 500, PaginationParams{Page: 3, PerPage: 100}, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := NewPagination(tt.page, tt.perPage, 20, 100)
			assert.Equal(t, tt.expected, params)
			assert.Equal(t, tt.offset, params.Offset())
		})
	}
	assert.Equal(t, PaginationParams{Page: 1, PerPage: 20}, DefaultPagination())
}
