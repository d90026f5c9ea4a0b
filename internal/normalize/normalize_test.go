package normalize

import (
	"errors"
	"testing"
	"time"

	"taskflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const milk = `{"id":"t1","task":"Buy milk","completed":false,"date":"2026-10-18","priority":"high","userId":"u1","createdAt":"2026-10-01T09:00:00Z","updatedAt":"2026-10-02T09:00:00Z"}`

func wantMilk() models.Task {
	return models.Task{
		ID:        "t1",
		Title:     "Buy milk",
		DueDate:   models.Date{Year: 2026, Month: time.October, Day: 18},
		Priority:  models.PriorityHigh,
		OwnerRef:  "u1",
		CreatedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestOne_KnownShapes(t *testing.T) {
	shapes := map[string]string{
		"bare":       milk,
		"data":       `{"message":"ok","data":` + milk + `}`,
		"todo":       `{"todo":` + milk + `}`,
		"data first": `{"data":` + milk + `,"todo":{"id":"other","title":"x"}}`,
	}
	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			got, err := One([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, wantMilk(), got)
		})
	}
}

func TestOne_DirectItemWinsOverWrapper(t *testing.T) {
	got, err := One([]byte(`{"id":"outer","title":"Outer","data":{"id":"inner","title":"Inner"}}`))
	require.NoError(t, err)
	assert.Equal(t, "outer", got.ID)
	assert.Equal(t, "Outer", got.Title)
}

func TestOne_UnknownShapeFails(t *testing.T) {
	for _, body := range []string{
		`{"message":"created"}`,
		`{"data":{"title":"no id"}}`,
		`{"result":` + milk + `}`,
		`[` + milk + `]`,
		`"t1"`,
		``,
	} {
		_, err := One([]byte(body))
		var shapeErr *ShapeError
		assert.True(t, errors.As(err, &shapeErr), "body %q", body)
	}
}

func TestOne_MalformedMatchedItemFails(t *testing.T) {
	_, err := One([]byte(`{"data":{"id":"t1","title":"x","priority":"urgent"}}`))
	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Contains(t, shapeErr.Reason, "data")
}

func TestOne_NumericIDAndTitleFallback(t *testing.T) {
	got, err := One([]byte(`{"_id":42,"title":"Numeric","dueDate":"2026-10-20T23:30:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "42", got.ID)
	assert.Equal(t, models.PriorityLow, got.Priority)
	assert.False(t, got.DueDate.IsZero())
}

func TestMany_KnownShapes(t *testing.T) {
	arr := `[` + milk + `]`
	shapes := map[string]string{
		"bare":       arr,
		"data":       `{"data":` + arr + `}`,
		"todos":      `{"todos":` + arr + `}`,
		"data.todos": `{"success":true,"data":{"todos":` + arr + `,"totalTodos":1}}`,
	}
	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			got, err := Many([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, []models.Task{wantMilk()}, got)
		})
	}
}

func TestMany_UnknownShapeIsEmpty(t *testing.T) {
	for _, body := range []string{`{"message":"nothing"}`, `{"data":{"items":[]}}`, `null`, ``} {
		got, err := Many([]byte(body))
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestMany_MalformedElementFails(t *testing.T) {
	_, err := Many([]byte(`{"todos":[` + milk + `,{"title":"no id"}]}`))
	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Contains(t, shapeErr.Reason, "element 1")
}

func TestPageOf_ReadsPagination(t *testing.T) {
	body := `{"success":true,"data":{"todos":[` + milk + `],"totalTodos":41,"hasNextPage":true,"nextPage":2}}`
	page, err := PageOf([]byte(body))
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 1)
	assert.Equal(t, 41, page.Total)
	assert.True(t, page.HasNextPage)
	require.NotNil(t, page.NextPage)
	assert.Equal(t, 2, *page.NextPage)
}

func TestLogin_Shapes(t *testing.T) {
	nested := `{"success":true,"data":{"token":"abc","user":{"id":"u1","name":"Ana","email":"ana@example.com"}}}`
	token, user, err := Login([]byte(nested))
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, "Ana", user.Name)

	flat := `{"message":"ok","token":"xyz","user":{"id":"u2"}}`
	token, user, err = Login([]byte(flat))
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)
	assert.Equal(t, "u2", user.ID)

	_, _, err = Login([]byte(`{"message":"ok"}`))
	var shapeErr *ShapeError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "title required", Message([]byte(`{"message":"title required"}`)))
	assert.Equal(t, "bad", Message([]byte(`{"error":"bad"}`)))
	assert.Equal(t, "", Message([]byte(`<html>`)))
}
