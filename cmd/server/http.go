package main

import (
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"yappify/auth"
	"yappify/domain"
	"yappify/errors"
	"yappify/internal"
	"yappify/runtime"
	"yappify/services"
)

const localUserID = "userID"

// Server wires the HTTP surface onto the services. Handlers stay thin:
// parse, delegate, translate the error taxonomy to a status code.
type Server struct {
	log      *slog.Logger
	config   *internal.Config
	auth     services.IAuthService
	chats    services.IChatService
	messages services.IMessageService
	tokens   *auth.TokenManager
	registry *runtime.Registry
}

func NewServer(log *slog.Logger,
	config *internal.Config,
	authService services.IAuthService,
	chatService services.IChatService,
	messageService services.IMessageService,
	tokens *auth.TokenManager,
	registry *runtime.Registry) *Server {
	return &Server{
		log:      log,
		config:   config,
		auth:     authService,
		chats:    chatService,
		messages: messageService,
		tokens:   tokens,
		registry: registry,
	}
}

func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post("/api/auth/register", s.handleRegister)
	app.Post("/api/auth/login", s.handleLogin)

	api := app.Group("/api", s.requireAuth)
	api.Get("/users/search", s.handleSearchUsers)

	api.Get("/chats", s.handleFetchChats)
	api.Post("/chats/direct", s.handleDirectChat)
	api.Post("/chats/group", s.handleCreateGroup)
	api.Get("/chats/:chatID", s.handleGetChat)
	api.Put("/chats/:chatID/name", s.handleRenameGroup)
	api.Post("/chats/:chatID/members", s.handleAddMember)
	api.Delete("/chats/:chatID/members/:userID", s.handleRemoveMember)
	api.Put("/chats/:chatID/admin", s.handleTransferAdmin)
	api.Post("/chats/:chatID/leave", s.handleLeaveGroup)
	api.Delete("/chats/:chatID", s.handleDeleteGroup)

	api.Post("/chats/:chatID/messages", s.handleSendMessage)
	api.Get("/chats/:chatID/messages", s.handleListMessages)
	api.Get("/chats/:chatID/unread", s.handleUnreadCount)
	api.Put("/messages/:messageID", s.handleEditMessage)
	api.Delete("/messages/:messageID", s.handleDeleteMessage)
	api.Post("/messages/:messageID/read", s.handleMarkRead)

	app.Use("/ws", s.upgradeWebSocket)
	app.Get("/ws", websocket.New(s.handleWebSocket))

	return app
}

// requireAuth validates the bearer token and stores the caller's user id
// in the request locals.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	c.Locals(localUserID, claims.UserID)
	return c.Next()
}

func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// userView is the outward shape of a user. The credential hash never
// leaves the process.
type userView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserView(user *domain.User) userView {
	return userView{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Avatar:    user.Avatar,
		CreatedAt: user.CreatedAt,
	}
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	user, err := s.auth.Register(req.Name, req.Email, req.Password)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toUserView(user))
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	token, user, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "user": toUserView(user)})
}

func (s *Server) handleSearchUsers(c *fiber.Ctx) error {
	users, err := s.auth.SearchUsers(c.Query("q"), callerID(c))
	if err != nil {
		return s.fail(c, err)
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, toUserView(&users[i]))
	}
	return c.JSON(views)
}

func (s *Server) handleFetchChats(c *fiber.Ctx) error {
	summaries, err := s.chats.FetchChats(callerID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(summaries)
}

func (s *Server) handleDirectChat(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	chat, err := s.chats.AccessOrCreateDirectChat(callerID(c), req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(chat)
}

func (s *Server) handleCreateGroup(c *fiber.Ctx) error {
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	chat, err := s.chats.CreateGroup(req.Name, req.Members, callerID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(chat)
}

func (s *Server) handleGetChat(c *fiber.Ctx) error {
	chat, err := s.chats.GetChat(c.Params("chatID"), callerID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(chat)
}

func (s *Server) handleRenameGroup(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	chat, err := s.chats.RenameGroup(c.Params("chatID"), req.Name, callerID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(chat)
}

func (s *Server) handleAddMember(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	chat, err := s.chats.AddMember(c.Params("chatID"), req.UserID, callerID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(chat)
}

func (s *Server) handleRemoveMember(c *fiber.Ctx) error {
	chat, err := s.chats.RemoveMember(c.Params("chatID"), c.Params("userID"), callerID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(chat)
}

func (s *Server) handleTransferAdmin(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	chat, err := s.chats.TransferAdmin(c.Params("chatID"), callerID(c), req.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(chat)
}

func (s *Server) handleLeaveGroup(c *fiber.Ctx) error {
	if err := s.chats.LeaveGroup(c.Params("chatID"), callerID(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeleteGroup(c *fiber.Ctx) error {
	if err := s.chats.DeleteGroup(c.Params("chatID"), callerID(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	msg, err := s.messages.Send(c.Context(), callerID(c), c.Params("chatID"), req.Content)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	page := c.QueryInt("page", 0)
	size := c.QueryInt("size", 50)
	msgs, err := s.messages.ListMessages(c.Params("chatID"), callerID(c), page, size)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(msgs)
}

func (s *Server) handleUnreadCount(c *fiber.Ctx) error {
	count, err := s.messages.UnreadCount(c.Params("chatID"), callerID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"unread": count})
}

func (s *Server) handleEditMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	msg, err := s.messages.Edit(c.Params("messageID"), callerID(c), req.Content)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(msg)
}

func (s *Server) handleDeleteMessage(c *fiber.Ctx) error {
	if err := s.messages.Delete(c.Params("messageID"), callerID(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	if err := s.messages.MarkRead(c.Params("messageID"), callerID(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// fail maps the service error taxonomy onto HTTP status codes.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		status = fiber.StatusUnauthorized
	case stderrors.Is(err, errors.ErrNotFound):
		status = fiber.StatusNotFound
	case stderrors.Is(err, errors.ErrForbidden):
		status = fiber.StatusForbidden
	case stderrors.Is(err, errors.ErrInvalidArgument):
		status = fiber.StatusBadRequest
	case stderrors.Is(err, errors.ErrAlreadyExists):
		status = fiber.StatusConflict
	case stderrors.Is(err, errors.ErrUnavailable):
		status = fiber.StatusServiceUnavailable
	}
	if status == fiber.StatusInternalServerError {
		s.log.Error("Unmapped handler error", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
