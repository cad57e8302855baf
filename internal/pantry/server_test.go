package pantry

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/pantry-tracker/internal/foodkb"
)

var _ = Describe("Server", func() {
	var (
		store       *mockStore
		server      *Server
		ghttpServer *ghttp.Server
	)

	do := func(method, path, body string, user bool) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, bytes.NewBufferString(body))
		Expect(err).NotTo(HaveOccurred())
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if user {
			req.Header.Set(userHeader, "user-1")
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	BeforeEach(func() {
		store = newMockStore()
		store.items["milk-1"] = &Item{ID: "milk-1", UserID: "user-1", Name: "Milk", Category: "Dairy", ExpiryDate: "2025-03-11", Quantity: 1}
	})

	JustBeforeEach(func() {
		kb, err := foodkb.LoadDefault()
		Expect(err).NotTo(HaveOccurred())
		service := NewServiceWithDeps(store, kb, nil, nil, nil, &sequentialIDs{}, fixedClock{now: today})
		server = NewServerWithMux(service, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
		DeferCleanup(ghttpServer.Close)
	})

	Describe("handleHealth", func() {
		It("should return status OK without a user", func() {
			resp := do("GET", "/api/health", "", false)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	When("the user header is missing", func() {
		It("should return status Unauthorized", func() {
			resp := do("GET", "/api/pantry", "", false)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
		})
	})

	Describe("preflight", func() {
		It("should answer with CORS headers", func() {
			resp := do("OPTIONS", "/api/pantry", "", false)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Headers")).To(ContainSubstring(userHeader))
		})
	})

	Describe("handleListItems", func() {
		It("should return the items with status", func() {
			resp := do("GET", "/api/pantry", "", true)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var views []map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&views)).To(Succeed())
			Expect(views).To(HaveLen(1))
			Expect(views[0]["name"]).To(Equal("Milk"))
			Expect(views[0]["status"]).To(Equal("critical"))
			Expect(views[0]["days_until_expiry"]).To(BeNumerically("==", 1))
		})
	})

	Describe("handleReceiptText", func() {
		It("should return status Created with the added items", func() {
			resp := do("POST", "/api/receipts/text", `{"text":"BANANAS\nTOTAL 1.29"}`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var result IngestResult
			Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
			Expect(result.Inserted).To(HaveLen(1))
			Expect(result.Inserted[0].Name).To(Equal("Bananas"))
		})

		It("should reject a malformed body", func() {
			resp := do("POST", "/api/receipts/text", `{"text":`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleReceiptStructured", func() {
		It("should return status Created", func() {
			resp := do("POST", "/api/receipts/structured", `{"line_items":[{"description":"MILK","quantity":2}]}`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var result IngestResult
			Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
			Expect(result.Updated).To(HaveLen(1))
			Expect(result.Updated[0].Quantity).To(Equal(3))
		})
	})

	Describe("handleReceiptScan", func() {
		When("no scanner is configured", func() {
			It("should still add the default items", func() {
				body := &bytes.Buffer{}
				mw := multipart.NewWriter(body)
				part, err := mw.CreateFormFile("file", "receipt.png")
				Expect(err).NotTo(HaveOccurred())
				_, err = part.Write([]byte("not really a png"))
				Expect(err).NotTo(HaveOccurred())
				Expect(mw.Close()).To(Succeed())

				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/receipts/scan", body)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", mw.FormDataContentType())
				req.Header.Set(userHeader, "user-1")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var result IngestResult
				Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
				Expect(string(result.Source)).To(Equal("defaults"))
			})
		})

		When("the file is missing", func() {
			It("should return status Bad Request", func() {
				body := &bytes.Buffer{}
				mw := multipart.NewWriter(body)
				Expect(mw.Close()).To(Succeed())

				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/receipts/scan", body)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", mw.FormDataContentType())
				req.Header.Set(userHeader, "user-1")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleUpdateItem", func() {
		It("should return status Not Found for an unknown item", func() {
			resp := do("PATCH", "/api/pantry/missing", `{"quantity":2}`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return status Bad Request for an invalid quantity", func() {
			resp := do("PATCH", "/api/pantry/milk-1", `{"quantity":0}`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleDeleteItem", func() {
		It("should return status No Content", func() {
			resp := do("DELETE", "/api/pantry/milk-1", "", true)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(store.items).To(BeEmpty())
		})
	})

	Describe("handleToggleFreeze", func() {
		It("should return status Bad Request for milk", func() {
			resp := do("POST", "/api/pantry/milk-1/freeze", "", true)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleSuggestRecipes", func() {
		It("should return status Service Unavailable without a model", func() {
			resp := do("POST", "/api/recipes", "", true)
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("handleRecipeClick", func() {
		It("should return status Created with the stored click", func() {
			resp := do("POST", "/api/recipe-clicks", `{"recipe":"Banana Bread"}`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var click RecipeClick
			Expect(json.NewDecoder(resp.Body).Decode(&click)).To(Succeed())
			Expect(click.Recipe).To(Equal("Banana Bread"))
			Expect(click.UserID).To(Equal("user-1"))
			Expect(store.clicks).To(HaveLen(1))
		})

		It("should return status Bad Request without a recipe", func() {
			resp := do("POST", "/api/recipe-clicks", `{}`, true)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return status Unauthorized without a user", func() {
			resp := do("POST", "/api/recipe-clicks", `{"recipe":"Soup"}`, false)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("contentType", func() {
		It("should prefer the declared type", func() {
			Expect(contentType("Image/PNG", "x.pdf")).To(Equal("image/png"))
		})

		It("should fall back to the extension", func() {
			Expect(contentType("", "IMG_0001.HEIC")).To(Equal("image/heic"))
			Expect(contentType("", "scan")).To(Equal("application/octet-stream"))
		})
	})
})
