package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"

	"projecthub/projecthub/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// apiError carries the status code and envelope message of a failed request
// so tests can assert on exact response codes.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("request failed with status %d: %v", e.StatusCode, e.Message)
}

func responseCode(err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

// response data will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
		r.Header("Content-Type", "application/json")
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(res.Body).Decode(&env)

	if res.StatusCode != http.StatusOK {
		message := env.Message
		if decodeErr != nil {
			message = w.Body.String()
		}
		return &apiError{StatusCode: res.StatusCode, Message: message}
	}

	if result != nil {
		if decodeErr != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, decodeErr)
		}
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("error parsing %v response data from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	userId    uuid.UUID
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Put(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "PUT", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) login(email, password string) error {
	var res struct {
		Token string            `json:"token"`
		User  services.UserInfo `json:"user"`
	}

	err := c.Post("/auth/login").Json(map[string]string{"email": email, "password": password}).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.Token
	c.userId = res.User.Id

	return nil
}

func (c *client) me() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/auth/me").Do(&res)
	return res, err
}

func (c *client) changePassword(current, updated string) error {
	body := map[string]string{"currentPassword": current, "newPassword": updated}
	return c.Put("/auth/users/password").Json(body).Do(nil)
}

func (c *client) createUser(name, email, password, role string) (uuid.UUID, error) {
	body := map[string]string{
		"name": name, "email": email, "password": password, "role": role,
	}

	var res struct {
		UserId uuid.UUID `json:"user_id"`
	}
	err := c.Post("/admin/users/").Json(body).Do(&res)
	return res.UserId, err
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/admin/users/").Do(&res)
	return res, err
}

func (c *client) getUser(userId uuid.UUID) (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get(fmt.Sprintf("/admin/users/%v", userId)).Do(&res)
	return res, err
}

func (c *client) updateUser(userId uuid.UUID, patch map[string]interface{}) error {
	return c.Put(fmt.Sprintf("/admin/users/%v", userId)).Json(patch).Do(nil)
}

func (c *client) deleteUser(userId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/admin/users/%v", userId)).Do(nil)
}

func (c *client) availableUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/projects/available-users").Do(&res)
	return res, err
}

func (c *client) createProject(body map[string]interface{}) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Post("/projects/").Json(body).Do(&res)
	return res, err
}

func (c *client) listProjects() ([]services.ProjectInfo, error) {
	var res []services.ProjectInfo
	err := c.Get("/projects/").Do(&res)
	return res, err
}

func (c *client) getProject(projectId uuid.UUID) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Get(fmt.Sprintf("/projects/%v", projectId)).Do(&res)
	return res, err
}

func (c *client) updateProject(projectId uuid.UUID, patch map[string]interface{}) (services.ProjectInfo, error) {
	var res services.ProjectInfo
	err := c.Put(fmt.Sprintf("/projects/%v", projectId)).Json(patch).Do(&res)
	return res, err
}

func (c *client) deleteProject(projectId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/projects/%v", projectId)).Do(nil)
}

func (c *client) listDocuments(projectId uuid.UUID) ([]services.DocumentInfo, error) {
	var res []services.DocumentInfo
	err := c.Get(fmt.Sprintf("/projects/%v/documents/", projectId)).Do(&res)
	return res, err
}

func (c *client) uploadFile(projectId uuid.UUID, name, filename, contentType string, content []byte) (services.DocumentInfo, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("name", name); err != nil {
		return services.DocumentInfo{}, err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%v"`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return services.DocumentInfo{}, err
	}
	if _, err := part.Write(content); err != nil {
		return services.DocumentInfo{}, err
	}

	if err := writer.Close(); err != nil {
		return services.DocumentInfo{}, err
	}

	var res services.DocumentInfo
	err = c.Post(fmt.Sprintf("/projects/%v/documents/", projectId)).
		Header("Content-Type", writer.FormDataContentType()).
		Body(body).
		Do(&res)
	return res, err
}

func (c *client) uploadLink(projectId uuid.UUID, name, link string) (services.DocumentInfo, error) {
	var res services.DocumentInfo
	err := c.Post(fmt.Sprintf("/projects/%v/documents/link", projectId)).
		Json(map[string]string{"name": name, "link": link}).
		Do(&res)
	return res, err
}

type downloadResult struct {
	Content            []byte
	ContentType        string
	ContentLength      string
	ContentDisposition string
}

func (c *client) download(projectId, docId uuid.UUID) (downloadResult, error) {
	endpoint := fmt.Sprintf("/projects/%v/documents/%v/download", projectId, docId)
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.authToken))

	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var env envelope
		if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
			return downloadResult{}, &apiError{StatusCode: res.StatusCode, Message: w.Body.String()}
		}
		return downloadResult{}, &apiError{StatusCode: res.StatusCode, Message: env.Message}
	}

	content, err := io.ReadAll(res.Body)
	if err != nil {
		return downloadResult{}, err
	}

	return downloadResult{
		Content:            content,
		ContentType:        res.Header.Get("Content-Type"),
		ContentLength:      res.Header.Get("Content-Length"),
		ContentDisposition: res.Header.Get("Content-Disposition"),
	}, nil
}

func (c *client) deleteDocument(projectId, docId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/projects/%v/documents/%v", projectId, docId)).Do(nil)
}
