package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"jababank/models"
	"jababank/pkg/config"
	"jababank/pkg/core"
	"jababank/pkg/events"
	"jababank/pkg/flags"
	"jababank/pkg/identity"
	"jababank/pkg/ledger"
	"jababank/pkg/loans"
	"jababank/pkg/money"
	"jababank/pkg/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type server struct {
	db       *gorm.DB
	identity *identity.Service
	ledger   *ledger.Engine
	loans    *loans.Workflow
	flags    *flags.Service
	events   events.Publisher
	log      *slog.Logger
	timeout  time.Duration
	origins  []string
}

func newServer(db *gorm.DB, cfg config.Config, publisher events.Publisher, logger *slog.Logger) *server {
	engine := ledger.NewEngine(db)
	return &server{
		db:     db,
		ledger: engine,
		identity: identity.NewService(db, engine, identity.Options{
			Secret:     cfg.JWTSecret,
			AccessTTL:  cfg.AccessTokenTTL,
			RefreshTTL: cfg.RefreshTokenTTL,
		}),
		loans:   loans.NewWorkflow(db, engine),
		flags:   flags.NewService(db),
		events:  publisher,
		log:     logger,
		timeout: cfg.RequestTimeout,
		origins: cfg.CORSOrigins,
	}
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.Use(gin.Recovery(), requestLogger(s.log), timeoutMiddleware(s.timeout))
	if len(s.origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.healthHandler)
	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)
	r.POST("/refresh", s.refreshHandler)
	r.POST("/revoke_refresh", s.revokeRefreshHandler)

	authGroup := r.Group("")
	authGroup.Use(s.jwtAuthMiddleware())
	authGroup.GET("/me", s.meHandler)

	customer := authGroup.Group("", requireRole(models.RoleCustomer))
	customer.GET("/accounts", s.listAccountsHandler)
	customer.GET("/transactions", s.listTransactionsHandler)
	customer.POST("/transfers", s.transferHandler)
	customer.POST("/loans", s.requestLoanHandler)
	customer.GET("/loans", s.listLoansHandler)

	authGroup.GET("/loans/:id", s.getLoanHandler)

	staff := authGroup.Group("/employee", requireRole(models.RoleEmployee, models.RoleAdmin))
	staff.GET("/transactions", s.unflaggedTransactionsHandler)
	staff.GET("/flags", s.listFlaggedHandler)
	staff.POST("/flags", s.flagTransactionHandler)

	admin := authGroup.Group("/admin", requireRole(models.RoleAdmin))
	admin.GET("/loans/pending", s.pendingLoansHandler)
	admin.POST("/loans/:id/approve", s.approveLoanHandler)
	admin.POST("/loans/:id/reject", s.rejectLoanHandler)
	admin.GET("/users/pending", s.pendingUsersHandler)
	admin.POST("/users/:id/approve", s.approveUserHandler)
	admin.PUT("/users/:id/status", s.setUserStatusHandler)
	admin.POST("/users", s.createStaffHandler)
}

func (s *server) healthHandler(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) registerHandler(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.identity.Register(c.Request.Context(), identity.Registration{
		Name: req.Name, Email: req.Email, Password: req.Password, Role: models.RoleCustomer,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "registration received, awaiting approval", "user": userJSON(user)})
}

func (s *server) loginHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.identity.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	tokens, err := s.identity.IssueTokens(c.Request.Context(), user)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokens.AccessToken, "refresh_token": tokens.RefreshToken, "user": userJSON(user)})
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func (s *server) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := s.identity.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func (s *server) revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.identity.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

func (s *server) meHandler(c *gin.Context) {
	user, err := s.identity.User(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

func (s *server) listAccountsHandler(c *gin.Context) {
	rows, err := store.AccountsForUser(c.Request.Context(), s.db, actorFrom(c).UserID)
	if err != nil {
		s.writeError(c, core.Storage("list accounts", err))
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, a := range rows {
		out = append(out, accountJSON(a))
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) listTransactionsHandler(c *gin.Context) {
	page := pageFrom(c)
	rows, total, err := store.TransactionsForUser(c.Request.Context(), s.db, actorFrom(c).UserID, page)
	if err != nil {
		s.writeError(c, core.Storage("list transactions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page.Number, "size": page.Size, "total": total, "items": transactionsJSON(rows)})
}

func (s *server) transferHandler(c *gin.Context) {
	var req struct {
		FromAccountID   uint            `json:"from_account_id" binding:"required"`
		ToAccountNumber string          `json:"to_account_number" binding:"required"`
		Amount          decimal.Decimal `json:"amount"`
		Description     string          `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := money.FromDecimal(req.Amount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	actor := actorFrom(c)
	rec, err := s.ledger.Transfer(c.Request.Context(), actor, ledger.TransferRequest{
		SourceAccountID:          req.FromAccountID,
		DestinationAccountNumber: req.ToAccountNumber,
		Amount:                   amount,
		Description:              req.Description,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := transactionJSON(*rec)
	s.publish(c, events.TransferCompleted, "account:"+strconv.FormatUint(uint64(req.FromAccountID), 10), actor, body)
	c.JSON(http.StatusCreated, body)
}

func (s *server) requestLoanHandler(c *gin.Context) {
	var req struct {
		Amount  decimal.Decimal `json:"amount"`
		Type    string          `json:"type" binding:"required"`
		Purpose string          `json:"purpose"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := money.FromDecimal(req.Amount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	actor := actorFrom(c)
	loan, err := s.loans.RequestLoan(c.Request.Context(), actor, loans.Request{Amount: amount, Type: req.Type, Purpose: req.Purpose})
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := loanJSON(*loan)
	s.publish(c, events.LoanRequested, loanKey(loan.ID), actor, body)
	c.JSON(http.StatusCreated, body)
}

func (s *server) listLoansHandler(c *gin.Context) {
	rows, err := s.loans.ListForUser(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loansJSON(rows))
}

func (s *server) getLoanHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	loan, err := s.loans.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(*loan))
}

func (s *server) pendingLoansHandler(c *gin.Context) {
	rows, err := s.loans.ListPending(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loansJSON(rows))
}

func (s *server) approveLoanHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	actor := actorFrom(c)
	rec, err := s.loans.Approve(c.Request.Context(), actor, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := gin.H{"loan_id": id, "status": models.LoanApproved, "disbursement": transactionJSON(*rec)}
	s.publish(c, events.LoanApproved, loanKey(id), actor, body)
	c.JSON(http.StatusOK, body)
}

func (s *server) rejectLoanHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := actorFrom(c)
	loan, err := s.loans.Reject(c.Request.Context(), actor, id, req.Comment)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := loanJSON(*loan)
	s.publish(c, events.LoanRejected, loanKey(id), actor, body)
	c.JSON(http.StatusOK, body)
}

func (s *server) unflaggedTransactionsHandler(c *gin.Context) {
	page := pageFrom(c)
	rows, err := s.flags.ListUnflagged(c.Request.Context(), actorFrom(c), page)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page.Number, "size": page.Size, "items": transactionsJSON(rows)})
}

func (s *server) flagTransactionHandler(c *gin.Context) {
	var req struct {
		TransactionID uint   `json:"transaction_id" binding:"required"`
		Reason        string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := actorFrom(c)
	rec, err := s.flags.Flag(c.Request.Context(), actor, req.TransactionID, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := flagJSON(*rec)
	s.publish(c, events.TransactionFlagged, "transaction:"+strconv.FormatUint(uint64(rec.TransactionID), 10), actor, body)
	c.JSON(http.StatusCreated, body)
}

func (s *server) listFlaggedHandler(c *gin.Context) {
	rows, err := s.flags.ListFlagged(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, f := range rows {
		out = append(out, flaggedJSON(f))
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) pendingUsersHandler(c *gin.Context) {
	rows, err := s.identity.PendingUsers(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, userJSON(&rows[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) approveUserHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	actor := actorFrom(c)
	user, err := s.identity.ApproveUser(c.Request.Context(), actor, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := userJSON(user)
	s.publish(c, events.UserApproved, "user:"+strconv.FormatUint(uint64(id), 10), actor, body)
	c.JSON(http.StatusOK, body)
}

func (s *server) setUserStatusHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, ok := models.ParseUserStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active, inactive or locked"})
		return
	}
	actor := actorFrom(c)
	user, err := s.identity.SetUserStatus(c.Request.Context(), actor, id, status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := userJSON(user)
	s.publish(c, events.UserStatusChanged, "user:"+strconv.FormatUint(uint64(id), 10), actor, body)
	c.JSON(http.StatusOK, body)
}

// createStaffHandler lets an admin add employees, admins or pre-approved customers.
func (s *server) createStaffHandler(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		s.writeError(c, core.ErrInvalidType)
		return
	}
	ctx := c.Request.Context()
	user, err := s.identity.Register(ctx, identity.Registration{Name: req.Name, Email: req.Email, Password: req.Password, Role: role})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if user.Status == models.StatusInactive {
		if user, err = s.identity.ApproveUser(ctx, actorFrom(c), user.ID); err != nil {
			s.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, userJSON(user))
}

// publish emits an event after a committed change. Failures are logged; the
// change itself stands.
func (s *server) publish(c *gin.Context, typ, key string, actor core.Actor, data any) {
	e, err := events.New(typ, key, actor.UserID, data)
	if err == nil {
		ctx := context.WithoutCancel(c.Request.Context())
		err = s.events.Publish(ctx, e)
	}
	if err != nil {
		s.log.Warn("event publish failed", "type", typ, "key", key, "request_id", c.GetString(requestIDKey), "error", err)
	}
}

func loanKey(id uint) string {
	return "loan:" + strconv.FormatUint(uint64(id), 10)
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func pageFrom(c *gin.Context) store.Page {
	n, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(store.DefaultPageSize)))
	if n < 1 {
		n = 1
	}
	if size < 1 || size > store.MaxPageSize {
		size = store.DefaultPageSize
	}
	return store.Page{Number: n, Size: size}
}
