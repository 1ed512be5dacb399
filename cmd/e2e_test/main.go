package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

var baseURL = "http://localhost:8080"

var token string

func main() {
	if v := os.Getenv("E2E_BASE_URL"); v != "" {
		baseURL = v
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Fatal("ADMIN_PASSWORD is required")
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// 1. Health Check
	checkEndpoint("GET", "/health", nil, 200)

	// 2. Mutations are rejected without a session
	checkEndpoint("POST", "/api/projects", map[string]interface{}{"name": "x"}, 403)

	// 3. Login
	login(password)

	// 4. Create Project
	projectID := createProject()
	fmt.Printf("Created Project ID: %s\n", projectID)

	// 5. Get Project
	checkEndpoint("GET", "/api/projects/"+projectID, nil, 200)

	// 6. Upload a document and fetch it back
	doc := upload(projectID)
	fmt.Printf("Uploaded Document ID: %s\n", doc["id"])
	checkEndpoint("GET", doc["url"].(string), nil, 200)

	// 7. Hide it
	checkEndpoint("PATCH", "/api/documents/"+doc["id"].(string), map[string]interface{}{"is_visible": false}, 200)

	// 8. Delete the project; its document and file go with it
	checkEndpoint("DELETE", "/api/projects/"+projectID, nil, 200)
	checkEndpoint("GET", "/api/projects/"+projectID, nil, 404)
	checkEndpoint("GET", doc["url"].(string), nil, 404)

	fmt.Println("ALL TESTS PASSED")
}

func send(req *http.Request) (*http.Response, []byte) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) []byte {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, respBody := send(req)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	if len(respBody) < 512 {
		fmt.Printf("Response: %s\n", string(respBody))
	}
	return respBody
}

func login(password string) {
	fmt.Println("Logging in...")
	body := checkEndpoint("POST", "/api/admin/login", map[string]string{"password": password}, 200)
	var res map[string]string
	if err := json.Unmarshal(body, &res); err != nil || res["token"] == "" {
		log.Fatalf("Login returned no token: %s", string(body))
	}
	token = res["token"]
}

func createProject() string {
	fmt.Println("Creating project...")
	body := checkEndpoint("POST", "/api/projects", map[string]interface{}{
		"name":                       fmt.Sprintf("e2e-project-%d", time.Now().UnixNano()),
		"investment_date":            time.Now().Format("2006-01-02"),
		"committed_capital":          "150000",
		"current_shareholding_ratio": "20",
		"investment_cost":            "100000",
		"latest_financing_valuation": "1000000",
	}, 201)
	var res map[string]interface{}
	json.Unmarshal(body, &res)
	if res["moic"] == nil || res["book_value"] == nil {
		log.Fatalf("Expected derived book value and moic, got %s", string(body))
	}
	return res["id"].(string)
}

func upload(projectID string) map[string]interface{} {
	fmt.Println("Uploading document...")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("project_id", projectID)
	mw.WriteField("name", "e2e receipt")
	mw.WriteField("type", "receipt")
	fw, _ := mw.CreateFormFile("file", "receipt.txt")
	fw.Write([]byte("paid in full"))
	mw.Close()

	req, _ := http.NewRequest("POST", baseURL+"/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, body := send(req)
	if resp.StatusCode != 201 {
		log.Fatalf("Upload failed with status %d: %s", resp.StatusCode, string(body))
	}
	var res map[string]interface{}
	json.Unmarshal(body, &res)
	return res
}
