package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockArchive is a mock implementation of the blob store
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Store(ctx context.Context, name string, data []byte) error {
	args := m.Called(ctx, name, data)
	return args.Error(0)
}

func (m *MockArchive) Retrieve(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(ctx, name)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockArchive) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockArchive) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func TestArchiveCommands(t *testing.T) {
	ctx := context.Background()
	archive := &MockArchive{}
	archive.On("List", mock.Anything, "mentions/").Return([]string{"mentions/rss/2024-05-01/a.json", "mentions/reddit/2024-05-01/b.json"}, nil)
	archive.On("List", mock.Anything, "mentions/rss/").Return([]string{"mentions/rss/2024-05-01/a.json"}, nil)
	archive.On("Retrieve", mock.Anything, "mentions/rss/2024-05-01/a.json").Return([]byte(`{"run_id":"a"}`), nil)
	archive.On("Delete", mock.Anything, "mentions/rss/2024-05-01/a.json").Return(nil)
	archive.On("Delete", mock.Anything, "missing").Return(errors.New("blob not found"))

	listRun := func(args ...string) string {
		var out bytes.Buffer
		require.NoError(t, runArchiveList(ctx, archive, args, &out))
		return out.String()
	}

	assert.Equal(t, "mentions/rss/2024-05-01/a.json\nmentions/reddit/2024-05-01/b.json\n", listRun())
	assert.Equal(t, "mentions/rss/2024-05-01/a.json\n", listRun("mentions/rss/"))

	var out bytes.Buffer
	require.NoError(t, runArchiveGet(ctx, archive, []string{"mentions/rss/2024-05-01/a.json"}, &out))
	assert.Equal(t, "{\"run_id\":\"a\"}\n", out.String())

	out.Reset()
	require.NoError(t, runArchiveDelete(ctx, archive, []string{"mentions/rss/2024-05-01/a.json"}, &out))
	assert.Equal(t, "deleted mentions/rss/2024-05-01/a.json\n", out.String())

	assert.Error(t, runArchiveDelete(ctx, archive, []string{"missing"}, &out))
	archive.AssertExpectations(t)
}
