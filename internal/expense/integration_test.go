package expense_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/extraction"
)

// fakeScanner returns a fixed transcript
type fakeScanner struct {
	text  string
	calls int
}

func (f *fakeScanner) ReadText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	f.calls++
	return f.text, nil
}

func (f *fakeScanner) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		db       expense.DB
		store    expense.Storage
		scanner  *fakeScanner
		server   *expense.Server
		ghServer *ghttp.Server
	)

	postReceipt := func(filename string, content []byte) (int, string) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("receipt", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.WriteField("category", "Groceries")).To(Succeed())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/upload", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(respBody)
	}

	BeforeEach(func() {
		tempDir := GinkgoT().TempDir()

		var err error
		db, err = expense.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = expense.NewLocalStorage(filepath.Join(tempDir, "receipts"))
		Expect(err).NotTo(HaveOccurred())

		policy, err := extraction.New(extraction.PrioritizedPolicyName, extraction.Options{})
		Expect(err).NotTo(HaveOccurred())

		scanner = &fakeScanner{text: "EPICERIE DU COIN\nsubtotal 40.00\nTOTAL 42.50\nCASH 50.00"}
		service := expense.NewService(db, scanner, store, policy)
		server = expense.NewServer(service, expense.BasicAuth{})

		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
	})

	It("should record an upload once and serve it back", func() {
		// Upload, re-upload, list, then fetch the file
		ghServer.AppendHandlers(
			server.ServeHTTP,
			server.ServeHTTP,
			server.ServeHTTP,
			server.ServeHTTP,
		)

		content := []byte("%PDF-1.4 ... fake pdf content ...")

		code, body := postReceipt("receipt.pdf", content)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(Equal("Total amount: 42.50"))

		code, body = postReceipt("copy of receipt.pdf", content)
		Expect(code).To(Equal(http.StatusConflict))
		Expect(body).To(Equal("This receipt has already been uploaded."))
		Expect(scanner.calls).To(Equal(1))

		resp, err := http.Get(ghServer.URL() + "/api/expenses")
		Expect(err).NotTo(HaveOccurred())
		var expenses []*expense.Expense
		Expect(json.NewDecoder(resp.Body).Decode(&expenses)).To(Succeed())
		resp.Body.Close()

		Expect(expenses).To(HaveLen(1))
		Expect(expenses[0].Amount.StringFixed(2)).To(Equal("42.50"))
		Expect(expenses[0].Category).To(Equal("Groceries"))
		Expect(expenses[0].ContentType).To(Equal("application/pdf"))

		stored, err := store.Get(expenses[0].Filename)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(Equal(content))

		resp, err = http.Get(ghServer.URL() + "/api/expenses/" + expenses[0].ID + "/file")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		served, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(served).To(Equal(content))
	})

	It("should keep rejecting a receipt after its expense is deleted", func() {
		// Upload, list, delete, then re-upload
		ghServer.AppendHandlers(
			server.ServeHTTP,
			server.ServeHTTP,
			server.ServeHTTP,
			server.ServeHTTP,
		)

		content := []byte("%PDF-1.4 ... deleted receipt ...")

		code, _ := postReceipt("receipt.pdf", content)
		Expect(code).To(Equal(http.StatusOK))

		resp, err := http.Get(ghServer.URL() + "/api/expenses")
		Expect(err).NotTo(HaveOccurred())
		var expenses []*expense.Expense
		Expect(json.NewDecoder(resp.Body).Decode(&expenses)).To(Succeed())
		resp.Body.Close()
		Expect(expenses).To(HaveLen(1))

		req, err := http.NewRequest(http.MethodDelete, ghServer.URL()+"/api/expenses/"+expenses[0].ID, nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err = http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

		code, body := postReceipt("receipt.pdf", content)
		Expect(code).To(Equal(http.StatusConflict))
		Expect(body).To(Equal("This receipt has already been uploaded."))
		Expect(scanner.calls).To(Equal(1))
	})
})
