package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ponpaku/ai-kakeibo-2/internal/pipeline"
)

func (s *Server) uploadReceipt(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer func() { _ = file.Close() }()

	saved, err := s.images.Save(header.Filename, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expense, err := s.pipeline.IngestReceipt(c.Request.Context(), pipeline.ReceiptUpload{
		OriginalFilename: header.Filename,
		StoredFilename:   saved.StoredFilename,
		FilePath:         saved.Path,
		FileSize:         saved.Size,
		MimeType:         saved.MimeType,
	})
	if err != nil {
		if removeErr := s.images.Remove(saved.StoredFilename); removeErr != nil {
			s.logger.Warn("Failed to clean up orphaned image", "file", saved.StoredFilename, "error", removeErr)
		}
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, expense)
}

func (s *Server) receiptImage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	receipt, err := s.store.GetReceipt(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	path, err := s.images.Path(receipt.StoredFilename)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Type", receipt.MimeType)
	c.File(path)
}
