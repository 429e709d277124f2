package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collectdesk/internal/api"
)

// AbortProblem stops the chain with a problem document.
func AbortProblem(c *gin.Context, status int, detail string) {
	AbortWithProblem(c, api.Problem{Status: status, Detail: detail})
}

func AbortWithProblem(c *gin.Context, problem api.Problem) {
	if problem.Type == "" {
		problem.Type = "about:blank"
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	if problem.Instance == "" {
		problem.Instance = c.Request.URL.Path
	}
	c.Header("Content-Type", api.ProblemContentType)
	c.AbortWithStatusJSON(problem.Status, problem)
}
