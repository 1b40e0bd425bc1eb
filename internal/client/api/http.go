// Package api — тонкий HTTP-клиент хранилища. Поверх него работает
// cmd/client: скачивание шифртекста, получение ключа и расшифровка
// остаются на стороне вызывающего.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client держит адрес сервера и сессионный токен.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New создаёт клиента. baseURL — вида http://host:port, без хвостового слеша.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Token возвращает текущий сессионный токен.
func (c *Client) Token() string { return c.token }

// SetToken задаёт сессионный токен вручную (например, восстановленный из файла).
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body, nil
}

func (c *Client) postJSON(path string, payload any) (*http.Response, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// captureAuthCookie вытаскивает сессионный токен из Set-Cookie ответа.
func (c *Client) captureAuthCookie(resp *http.Response) error {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "auth_token" && cookie.Value != "" {
			c.token = cookie.Value
			return nil
		}
	}
	return fmt.Errorf("no auth cookie in response")
}

// Register регистрирует пользователя и запоминает сессию.
func (c *Client) Register(login, password string) error {
	resp, body, err := c.postJSON("/api/user/register", map[string]string{"login": login, "password": password})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("register failed: %s: %s", resp.Status, string(body))
	}
	return c.captureAuthCookie(resp)
}

// Login аутентифицирует пользователя и запоминает сессию.
func (c *Client) Login(login, password string) error {
	resp, body, err := c.postJSON("/api/user/login", map[string]string{"login": login, "password": password})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: %s: %s", resp.Status, string(body))
	}
	return c.captureAuthCookie(resp)
}

// UploadResult — ответ сервера на загрузку объекта.
type UploadResult struct {
	ObjectID    string `json:"object_id"`
	AccessToken string `json:"access_token"`
	Meta        struct {
		Name          string `json:"name"`
		ContentType   string `json:"content_type"`
		ContentHash   string `json:"content_hash"`
		PlaintextSize int64  `json:"plaintext_size"`
	} `json:"metadata"`
}

// Upload отправляет содержимое на шифрование и хранение.
func (c *Client) Upload(name, contentType string, data []byte) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, name)}
	hdr["Content-Type"] = []string{contentType}
	fw, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/objects", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload failed: %s: %s", resp.Status, string(body))
	}
	var res UploadResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &res, nil
}

// KeyIssue — материал расшифровки с привязанной сессией.
type KeyIssue struct {
	KeyToken  string `json:"key_token"`
	SessionID string `json:"session_id"`
	ExpiresIn int64  `json:"expires_in"`
	Key       string `json:"key"`
	IV        string `json:"iv"`
}

// IssueKey запрашивает ключ расшифровки объекта.
func (c *Client) IssueKey(objectID, accessToken string) (*KeyIssue, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/objects/"+objectID+"/key", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Access-Token", accessToken)
	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("issue key failed: %s: %s", resp.Status, string(body))
	}
	var issue KeyIssue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("decode key response: %w", err)
	}
	return &issue, nil
}

// KeyRedeem — погашенный материал.
type KeyRedeem struct {
	Key string `json:"key"`
	IV  string `json:"iv"`
}

// RedeemKey гасит key_access токен и получает материал из кеша сервера.
func (c *Client) RedeemKey(objectID, keyToken, sessionID string) (*KeyRedeem, error) {
	resp, body, err := c.postJSON("/api/objects/"+objectID+"/redeem",
		map[string]string{"key_token": keyToken, "session_id": sessionID})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("redeem failed: %s: %s", resp.Status, string(body))
	}
	var redeem KeyRedeem
	if err := json.Unmarshal(body, &redeem); err != nil {
		return nil, fmt.Errorf("decode redeem response: %w", err)
	}
	return &redeem, nil
}

// Download возвращает шифртекст объекта и ожидаемый хеш содержимого.
func (c *Client) Download(objectID, accessToken string) (ciphertext []byte, contentHash string, err error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/objects/"+objectID+"/content", nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("X-Access-Token", accessToken)
	resp, body, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: %s: %s", resp.Status, string(body))
	}
	return body, resp.Header.Get("X-Content-Hash"), nil
}

// Delete удаляет объект на сервере.
func (c *Client) Delete(objectID string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/objects/"+objectID, nil)
	if err != nil {
		return err
	}
	resp, body, err := c.do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete failed: %s: %s", resp.Status, string(body))
	}
	return nil
}
