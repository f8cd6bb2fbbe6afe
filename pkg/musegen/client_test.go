//go:build unit

package musegen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePayload_RequestStatusEnvelope(t *testing.T) {
	body := []byte(`{"requestStatus":{"requestId":"r1"},"task":{"id":"t1","status":"pending"}}`)
	payload, err := normalizePayload(http.StatusOK, body)
	require.NoError(t, err)
	// 负载平铺在信封旁，原文返回
	require.Equal(t, body, payload)
}

func TestNormalizePayload_RequestStatusError(t *testing.T) {
	body := []byte(`{"requestStatus":{"requestId":"r1","error":"INSUFFICIENT_CREDITS","errorMessage":"积分不足（可用 0 / 需要 1）"}}`)
	_, err := normalizePayload(http.StatusPaymentRequired, body)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "INSUFFICIENT_CREDITS", apiErr.Code)
	require.Equal(t, http.StatusPaymentRequired, apiErr.HTTPStatus)
	require.Contains(t, apiErr.Message, "积分不足")
}

func TestNormalizePayload_SuccessEnvelope(t *testing.T) {
	body := []byte(`{"success":true,"data":{"plan":"pro"},"code":0}`)
	payload, err := normalizePayload(http.StatusOK, body)
	require.NoError(t, err)
	require.JSONEq(t, `{"plan":"pro"}`, string(payload))
}

func TestNormalizePayload_SuccessEnvelopeFailure(t *testing.T) {
	body := []byte(`{"success":false,"message":"未登录","code":401}`)
	_, err := normalizePayload(http.StatusUnauthorized, body)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "401", apiErr.Code)
	require.Equal(t, "未登录", apiErr.Message)
}

func TestNormalizePayload_BareJSON(t *testing.T) {
	body := []byte(`{"permanentCredits":2,"renewableCredits":8,"frozenCredits":1}`)
	payload, err := normalizePayload(http.StatusOK, body)
	require.NoError(t, err)
	require.Equal(t, body, payload)

	_, err = normalizePayload(http.StatusInternalServerError, []byte("boom"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusInternalServerError, apiErr.HTTPStatus)
}

func TestClient_GenerateAndGetTask(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/v1/music/generate":
			w.Write([]byte(`{"requestStatus":{"requestId":"r1"},"task":{"id":"t1","status":"pending","progress":0,"video_description":"demo"}}`))
		case "/api/v1/music/tasks/t1":
			w.Write([]byte(`{"requestStatus":{"requestId":"r2"},"task":{"id":"t1","status":"completed","progress":100,"result_url":"/api/download/music-t1.mp3","duration":30}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := New(srv.URL, WithToken("token-abc"))
	ctx := context.Background()

	task, err := client.Generate(ctx, GenerateInput{VideoDescription: "demo"})
	require.NoError(t, err)
	require.Equal(t, "t1", task.ID)
	require.Equal(t, TaskStatusPending, task.Status)
	require.Equal(t, "Bearer token-abc", gotAuth)

	task, err = client.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.True(t, task.Terminal())
	require.Equal(t, "/api/download/music-t1.mp3", task.ResultURL)
	require.Equal(t, 30, task.Duration)
}

func TestClient_ListTasksQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "failed", r.URL.Query().Get("status"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "10", r.URL.Query().Get("pageSize"))
		w.Write([]byte(`{"requestStatus":{"requestId":"r1"},"tasks":[{"id":"t9","status":"failed"}],"total":11,"page":2,"pageSize":10}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL).ListTasks(context.Background(), "failed", 2, 10)
	require.NoError(t, err)
	require.EqualValues(t, 11, page.Total)
	require.Len(t, page.Tasks, 1)
	require.Equal(t, "t9", page.Tasks[0].ID)
}

func TestClient_DownloadURLFollowsLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://cdn.example.com/music-t1.mp3", http.StatusFound)
	}))
	defer srv.Close()

	url, err := New(srv.URL).DownloadURL(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/music-t1.mp3", url)
}

func TestClient_DownloadURLNotCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"requestStatus":{"requestId":"r1","error":"TASK_NOT_COMPLETED","errorMessage":"任务尚未完成"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).DownloadURL(context.Background(), "t1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "TASK_NOT_COMPLETED", apiErr.Code)
}

func TestClient_LoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login-callback":
			w.Write([]byte(`{"success":true,"data":{"user":{"id":1,"email":"a@example.com"},"token":"jwt-xyz"},"code":0}`))
		case "/api/v1/credits":
			require.Equal(t, "Bearer jwt-xyz", r.Header.Get("Authorization"))
			w.Write([]byte(`{"permanentCredits":0,"renewableCredits":10,"frozenCredits":0}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := New(srv.URL)
	token, err := client.Login(context.Background(), "a@example.com", "A")
	require.NoError(t, err)
	require.Equal(t, "jwt-xyz", token)

	info, err := client.Credits(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, info.Available())
}
