package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formgate/internal/services"
	"github.com/charlesng35/formgate/pkg/response"
)

const submissionAcceptedMessage = "Submission saved and email removed from authorization list."

// Admitter runs the admission protocol for a submission.
type Admitter interface {
	Admit(ctx context.Context, input services.SubmissionInput) (*services.Admission, error)
}

// SubmissionHandler exposes the form submission endpoint.
type SubmissionHandler struct {
	admissions Admitter
}

// NewSubmissionHandler constructs a SubmissionHandler.
func NewSubmissionHandler(admissions Admitter) (*SubmissionHandler, error) {
	if admissions == nil {
		return nil, errors.New("submission handler: admission service is required")
	}
	return &SubmissionHandler{admissions: admissions}, nil
}

type submitRequest struct {
	Name  string      `json:"name"`
	Age   flexibleInt `json:"age"`
	Email string      `json:"email"`
}

// Submit handles POST /submit.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var req submitRequest
	if !bindJSON(c, &req) {
		return
	}

	admission, err := h.admissions.Admit(requestContext(c), services.SubmissionInput{
		Name:  req.Name,
		Age:   int(req.Age),
		Email: req.Email,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":    submissionAcceptedMessage,
		"submission": admission.Submission,
	})
}
