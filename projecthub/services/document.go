package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"projecthub/projecthub/auth"
	"projecthub/projecthub/schema"
	"projecthub/projecthub/storage"
	"projecthub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

const maxUploadBytes = 15 << 20

var (
	uploadMetric = promauto.NewSummary(prometheus.SummaryOpts{
		Namespace: "projecthub",
		Name:      "document_upload",
		Help:      "Duration of document uploads",
	})

	downloadMetric = promauto.NewSummary(prometheus.SummaryOpts{
		Namespace: "projecthub",
		Name:      "document_download",
		Help:      "Duration of document downloads",
	})
)

// allowedContentTypes limits uploads to office documents, pdf, text, and
// common image formats.
var allowedContentTypes = map[string]bool{
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/pdf": true,
	"text/plain":      true,
	"text/csv":        true,
	"image/jpeg":      true,
	"image/png":       true,
}

type DocumentService struct {
	db    *gorm.DB
	store storage.Storage
}

// Routes is mounted under an authenticated /{project_id} project route, so
// every handler can rely on the actor context and the project_id url param.
func (s *DocumentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.List)
	r.Get("/{document_id}/download", s.Download)

	r.Group(func(r chi.Router) {
		r.Use(auth.RoleOnly(auth.RoleAdmin, auth.RoleLead))

		r.With(checkSufficientStorage(s.store)).Post("/", s.UploadFile)
		r.Post("/link", s.UploadLink)
		r.Delete("/{document_id}", s.Delete)
	})

	return r
}

type DocumentInfo struct {
	Id        uuid.UUID `json:"id"`
	ProjectId uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`

	// Type is "file" or "link". Exactly one of the two forms holds for
	// every record; the payload itself is never serialized here.
	Type        string `json:"type"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Link        string `json:"link,omitempty"`

	Uploader  UserInfo  `json:"uploaded_by"`
	CreatedAt time.Time `json:"created_at"`
}

func convertToDocumentInfo(doc *schema.Document) DocumentInfo {
	info := DocumentInfo{
		Id:        doc.Id,
		ProjectId: doc.ProjectId,
		Name:      doc.Name,
		CreatedAt: doc.CreatedAt,
	}

	if doc.IsFile() {
		info.Type = "file"
		info.ContentType = doc.ContentType
		info.Size = doc.Size
	} else {
		info.Type = "link"
		info.Link = doc.Link
	}

	if doc.Uploader != nil {
		info.Uploader = convertToUserInfo(doc.Uploader)
	} else {
		info.Uploader = UserInfo{Id: doc.UploadedBy}
	}

	return info
}

// viewableProject loads the project and checks the actor may see it.
func viewableProject(r *http.Request, db *gorm.DB) (schema.Project, error) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		return schema.Project{}, CodedError(err, http.StatusBadRequest)
	}

	actor, err := auth.ActorFromContext(r)
	if err != nil {
		return schema.Project{}, CodedError(err, http.StatusInternalServerError)
	}

	project, err := schema.GetProject(projectId, db, true)
	if err != nil {
		if errors.Is(err, schema.ErrProjectNotFound) {
			return schema.Project{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Project{}, CodedError(err, http.StatusInternalServerError)
	}

	if !auth.CanViewProject(actor, &project) {
		return schema.Project{}, CodedError(errors.New("you do not have permission to view this project"), http.StatusForbidden)
	}

	return project, nil
}

// manageableProject additionally requires document-management rights, which
// the role middleware alone cannot decide since a lead only manages projects
// they lead.
func manageableProject(r *http.Request, db *gorm.DB) (schema.Project, auth.Actor, error) {
	project, err := viewableProject(r, db)
	if err != nil {
		return schema.Project{}, auth.Actor{}, err
	}

	actor, err := auth.ActorFromContext(r)
	if err != nil {
		return schema.Project{}, auth.Actor{}, CodedError(err, http.StatusInternalServerError)
	}

	if !auth.CanManageDocuments(actor, &project) {
		return schema.Project{}, auth.Actor{}, CodedError(errors.New("you do not have permission to manage documents for this project"), http.StatusForbidden)
	}

	return project, actor, nil
}

func (s *DocumentService) List(w http.ResponseWriter, r *http.Request) {
	project, err := viewableProject(r, s.db)
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	var docs []schema.Document
	result := s.db.Preload("Uploader").
		Where("project_id = ?", project.Id).
		Order("created_at desc").
		Find(&docs)
	if result.Error != nil {
		slog.Error("sql error listing documents", "project_id", project.Id, "error", result.Error)
		utils.HttpError(w, fmt.Sprintf("error listing documents: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]DocumentInfo, 0, len(docs))
	for i := range docs {
		infos = append(infos, convertToDocumentInfo(&docs[i]))
	}
	utils.WriteJsonResponse(w, infos)
}

// storedFilename appends the original upload's extension to the user
// supplied display name. An upload without an extension keeps the bare name.
func storedFilename(name, originalFilename string) string {
	return strings.TrimSpace(name) + filepath.Ext(originalFilename)
}

func (s *DocumentService) UploadFile(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(uploadMetric)
	defer timer.ObserveDuration()

	project, actor, err := manageableProject(r, s.db)
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			utils.HttpError(w, fmt.Sprintf("file exceeds the %d byte upload limit", maxUploadBytes), http.StatusBadRequest)
			return
		}
		utils.HttpError(w, fmt.Sprintf("error parsing upload: %v", err), http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		utils.HttpError(w, "document name is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.HttpError(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedContentTypes[contentType] {
		utils.HttpError(w, "invalid file type", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			utils.HttpError(w, fmt.Sprintf("file exceeds the %d byte upload limit", maxUploadBytes), http.StatusBadRequest)
			return
		}
		utils.HttpError(w, fmt.Sprintf("error reading upload: %v", err), http.StatusInternalServerError)
		return
	}

	doc := schema.Document{
		Id:          uuid.New(),
		ProjectId:   project.Id,
		Name:        storedFilename(name, header.Filename),
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedBy:  actor.Id,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := s.store.Write(storage.DocumentPath(project.Id, doc.Id), bytes.NewReader(data)); err != nil {
			slog.Error("error writing document payload", "project_id", project.Id, "document_id", doc.Id, "error", err)
			return CodedError(errors.New("error storing document"), http.StatusInternalServerError)
		}

		result := txn.Create(&doc)
		if result.Error != nil {
			slog.Error("sql error creating document", "project_id", project.Id, "error", result.Error)
			// The blob is unreachable without the row; remove it so the
			// failed upload leaves nothing behind.
			if delErr := s.store.Delete(storage.DocumentPath(project.Id, doc.Id)); delErr != nil {
				slog.Error("error removing orphaned document payload", "document_id", doc.Id, "error", delErr)
			}
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error uploading document: %v", err), GetResponseCode(err))
		return
	}

	s.writeDocument(w, doc.Id)
}

type uploadLinkRequest struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

func (s *DocumentService) UploadLink(w http.ResponseWriter, r *http.Request) {
	project, actor, err := manageableProject(r, s.db)
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	var params uploadLinkRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" || params.Link == "" {
		utils.HttpError(w, "please provide name and link", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(params.Link)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		utils.HttpError(w, "invalid URL format", http.StatusBadRequest)
		return
	}

	doc := schema.Document{
		Id:         uuid.New(),
		ProjectId:  project.Id,
		Name:       params.Name,
		Link:       params.Link,
		UploadedBy: actor.Id,
	}

	result := s.db.Create(&doc)
	if result.Error != nil {
		slog.Error("sql error creating link document", "project_id", project.Id, "error", result.Error)
		utils.HttpError(w, fmt.Sprintf("error adding document link: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	s.writeDocument(w, doc.Id)
}

func (s *DocumentService) writeDocument(w http.ResponseWriter, docId uuid.UUID) {
	doc, err := schema.GetDocument(docId, s.db, true)
	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error loading document: %v", err), http.StatusInternalServerError)
		return
	}
	utils.WriteJsonResponse(w, convertToDocumentInfo(&doc))
}

// projectDocument resolves the document_id param and verifies the record
// belongs to the project in the url. A stale or guessed id from another
// project is rejected with a mismatch error.
func projectDocument(r *http.Request, db *gorm.DB, projectId uuid.UUID, loadUploader bool) (schema.Document, error) {
	docId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		return schema.Document{}, CodedError(err, http.StatusBadRequest)
	}

	doc, err := schema.GetDocument(docId, db, loadUploader)
	if err != nil {
		if errors.Is(err, schema.ErrDocumentNotFound) {
			return schema.Document{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Document{}, CodedError(err, http.StatusInternalServerError)
	}

	if doc.ProjectId != projectId {
		return schema.Document{}, CodedError(errors.New("document does not belong to this project"), http.StatusBadRequest)
	}

	return doc, nil
}

func (s *DocumentService) Download(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(downloadMetric)
	defer timer.ObserveDuration()

	project, err := viewableProject(r, s.db)
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	doc, err := projectDocument(r, s.db, project.Id, false)
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	if !doc.IsFile() {
		utils.HttpError(w, "link documents have no downloadable content", http.StatusBadRequest)
		return
	}

	payloadPath := storage.DocumentPath(project.Id, doc.Id)

	exists, err := s.store.Exists(payloadPath)
	if err != nil {
		utils.HttpError(w, "error reading document", http.StatusInternalServerError)
		return
	}
	if !exists {
		slog.Error("document payload missing from storage", "document_id", doc.Id, "path", payloadPath)
		utils.HttpError(w, "error reading document", http.StatusInternalServerError)
		return
	}

	// The content-length must match the bytes actually streamed, so it comes
	// from storage rather than the metadata row.
	size, err := s.store.Size(payloadPath)
	if err != nil {
		utils.HttpError(w, "error reading document", http.StatusInternalServerError)
		return
	}

	payload, err := s.store.Read(payloadPath)
	if err != nil {
		slog.Error("error reading document payload", "document_id", doc.Id, "error", err)
		utils.HttpError(w, "error reading document", http.StatusInternalServerError)
		return
	}
	defer payload.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(doc.Name)))

	if _, err := io.Copy(w, payload); err != nil {
		slog.Error("error streaming document payload", "document_id", doc.Id, "error", err)
	}
}

func (s *DocumentService) Delete(w http.ResponseWriter, r *http.Request) {
	project, _, err := manageableProject(r, s.db)
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	doc, err := projectDocument(r, s.db, project.Id, false)
	if err != nil {
		utils.HttpError(w, err.Error(), GetResponseCode(err))
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Delete(&schema.Document{Id: doc.Id})
		if result.Error != nil {
			slog.Error("sql error deleting document", "document_id", doc.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if doc.IsFile() {
			if err := s.store.Delete(storage.DocumentPath(project.Id, doc.Id)); err != nil {
				slog.Error("error deleting document payload", "document_id", doc.Id, "error", err)
				return CodedError(errors.New("error deleting document"), http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error deleting document: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
