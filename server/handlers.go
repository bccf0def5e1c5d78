package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/utils"
	"github.com/brettboylen/clanboard/views"
)

type voteRequest struct {
	VoteType string `json:"voteType"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type draftRequest struct {
	ParentID string `json:"parent_id"`
	Content  string `json:"content"`
}

type clanRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// errorStatus maps an action boundary error code to its HTTP status
func errorStatus(code string) int {
	switch code {
	case utils.ErrLoginRequired:
		return http.StatusUnauthorized
	case utils.ErrInvalidInput:
		return http.StatusBadRequest
	case utils.ErrNotFound:
		return http.StatusNotFound
	case utils.ErrInFlight:
		return http.StatusConflict
	case utils.ErrBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": message}
func fail(c echo.Context, err error) error {
	status := errorStatus(utils.ErrorCode(err))
	message := utils.UserMessage(err, "Something went wrong")
	return c.JSON(status, map[string]string{"error": message})
}

// render writes a view model; a view that did not resolve is a 404
func render(c echo.Context, status views.Status, view any) error {
	if status == views.StatusNotFound {
		return c.JSON(http.StatusNotFound, view)
	}
	return c.JSON(http.StatusOK, view)
}

// respond writes the view after an action, or the action's error
func respond(c echo.Context, view any, err error) error {
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func bindVote(c echo.Context) (models.VoteChoice, error) {
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return models.VoteNone, utils.NewValidationError("Invalid request body")
	}
	choice, err := models.ParseVoteChoice(req.VoteType)
	if err != nil {
		return models.VoteNone, utils.NewValidationError("voteType must be up or down")
	}
	return choice, nil
}

func (s *Server) getHome(c echo.Context) error {
	view := viewerOf(c).Home.Load(c.Request().Context(), c.QueryParam("sort"))
	return render(c, view.Status, view)
}

func (s *Server) voteHome(c echo.Context) error {
	choice, err := bindVote(c)
	if err != nil {
		return fail(c, err)
	}
	tally, err := viewerOf(c).Home.Vote(c.Request().Context(), c.Param("id"), choice)
	return respond(c, tally, err)
}

func (s *Server) getClan(c echo.Context) error {
	view := viewerOf(c).Clan.Load(c.Request().Context(), c.Param("name"))
	return render(c, view.Status, view)
}

func (s *Server) voteClan(c echo.Context) error {
	choice, err := bindVote(c)
	if err != nil {
		return fail(c, err)
	}
	tally, err := viewerOf(c).Clan.Vote(c.Request().Context(), c.Param("id"), choice)
	return respond(c, tally, err)
}

func (s *Server) joinClan(c echo.Context) error {
	view, err := viewerOf(c).Clan.Join(c.Request().Context())
	return respond(c, view, err)
}

func (s *Server) leaveClan(c echo.Context) error {
	view, err := viewerOf(c).Clan.Leave(c.Request().Context())
	return respond(c, view, err)
}

func (s *Server) getClanMembers(c echo.Context) error {
	members, err := viewerOf(c).Clan.Members(c.Request().Context())
	return respond(c, members, err)
}

func (s *Server) getPost(c echo.Context) error {
	view := viewerOf(c).Post.Load(c.Request().Context(), c.Param("id"))
	return render(c, view.Status, view)
}

func (s *Server) votePost(c echo.Context) error {
	choice, err := bindVote(c)
	if err != nil {
		return fail(c, err)
	}
	tally, err := viewerOf(c).Post.VotePost(c.Request().Context(), choice)
	return respond(c, tally, err)
}

func (s *Server) voteComment(c echo.Context) error {
	choice, err := bindVote(c)
	if err != nil {
		return fail(c, err)
	}
	tally, err := viewerOf(c).Post.VoteComment(c.Request().Context(), c.Param("cid"), choice)
	return respond(c, tally, err)
}

func (s *Server) saveDraft(c echo.Context) error {
	var req draftRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, utils.NewValidationError("Invalid request body"))
	}
	detail := viewerOf(c).Post
	detail.SetDraft(req.ParentID, req.Content)
	return c.JSON(http.StatusOK, detail.View())
}

func (s *Server) submitComment(c echo.Context) error {
	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, utils.NewValidationError("Invalid request body"))
	}
	view, err := viewerOf(c).Post.SubmitComment(c.Request().Context(), req.Content)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) submitReply(c echo.Context) error {
	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, utils.NewValidationError("Invalid request body"))
	}
	view, err := viewerOf(c).Post.SubmitReply(c.Request().Context(), c.Param("cid"), req.Content)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) getSearch(c echo.Context) error {
	view := viewerOf(c).Search.Load(c.Request().Context(), c.QueryParam("q"))
	return render(c, view.Status, view)
}

func (s *Server) voteSearch(c echo.Context) error {
	choice, err := bindVote(c)
	if err != nil {
		return fail(c, err)
	}
	tally, err := viewerOf(c).Search.Vote(c.Request().Context(), c.Param("id"), choice)
	return respond(c, tally, err)
}

func (s *Server) getProfile(c echo.Context) error {
	view := viewerOf(c).Profile.Load(c.Request().Context(), c.Param("username"))
	return render(c, view.Status, view)
}

func (s *Server) voteProfile(c echo.Context) error {
	choice, err := bindVote(c)
	if err != nil {
		return fail(c, err)
	}
	tally, err := viewerOf(c).Profile.Vote(c.Request().Context(), c.Param("id"), choice)
	return respond(c, tally, err)
}

func (s *Server) getSidebar(c echo.Context) error {
	view := viewerOf(c).Sidebar.Load(c.Request().Context())
	return render(c, view.Status, view)
}

func (s *Server) toggleSidebarClan(c echo.Context) error {
	view, err := viewerOf(c).Sidebar.Toggle(c.Request().Context(), c.Param("name"))
	return respond(c, view, err)
}

func (s *Server) createPost(c echo.Context) error {
	var req models.NewPost
	if err := c.Bind(&req); err != nil {
		return fail(c, utils.NewValidationError("Invalid request body"))
	}
	post, err := viewerOf(c).Composer.CreatePost(c.Request().Context(), req.Title, req.Content, req.Clan)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, post)
}

func (s *Server) createClan(c echo.Context) error {
	var req clanRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, utils.NewValidationError("Invalid request body"))
	}
	clan, err := viewerOf(c).Composer.CreateClan(c.Request().Context(), req.Name, req.DisplayName, req.Description)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, clan)
}

func (s *Server) login(c echo.Context) error {
	var req models.Credentials
	if err := c.Bind(&req); err != nil {
		return fail(c, utils.NewValidationError("Invalid request body"))
	}
	state, err := viewerOf(c).Composer.Login(c.Request().Context(), req.Email, req.Password)
	return respond(c, state, err)
}

func (s *Server) signup(c echo.Context) error {
	var req models.Credentials
	if err := c.Bind(&req); err != nil {
		return fail(c, utils.NewValidationError("Invalid request body"))
	}
	state, err := viewerOf(c).Composer.Signup(c.Request().Context(), req.Username, req.Email, req.Password)
	return respond(c, state, err)
}

func (s *Server) logout(c echo.Context) error {
	return c.JSON(http.StatusOK, viewerOf(c).Composer.Logout())
}

func (s *Server) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, viewerOf(c).Session.State())
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats.GetStatistics())
}

func (s *Server) getClanStats(c echo.Context) error {
	clan := c.Param("clan")
	stats := s.stats.GetStatistics()

	clanStats, exists := stats.ClanStats[clan]
	if !exists {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("No statistics available for clan %s", clan),
		})
	}
	return c.JSON(http.StatusOK, clanStats)
}
