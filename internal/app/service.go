package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tapiz/api/internal/archive"
	"tapiz/api/internal/auth"
	"tapiz/api/internal/board"
	"tapiz/api/internal/board/validate"
	"tapiz/api/internal/config"
	"tapiz/api/internal/room"
	"tapiz/api/internal/search"
	"tapiz/api/internal/store"
	"tapiz/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateBoard(context.Context, store.Board) error
	GetBoard(context.Context, string) (store.Board, error)
	ListBoardsForUser(context.Context, string) ([]store.Board, error)
	EnsureMembership(context.Context, string, string) (store.Member, error)
	Ping(ctx context.Context) error
}

// SessionStore holds refresh tokens. Redis when configured, Postgres
// otherwise.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type archiveService interface {
	EnsureBoardRepo(boardID, author string) error
	CommitSnapshot(boardID string, nodes []board.Node, author, message string) (archive.CommitInfo, error)
	LoadSnapshot(boardID string) ([]board.Node, bool, error)
	History(boardID string, limit int) ([]archive.CommitInfo, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	archive  archiveService
	search   *search.Service
	hub      *room.Hub
	log      zerolog.Logger
}

func New(cfg config.Config, dataStore dataStore, sessions SessionStore, archiveSvc archiveService, searchSvc *search.Service, broker room.Broker, log zerolog.Logger) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		archive:  archiveSvc,
		search:   searchSvc,
		log:      log,
	}
	s.hub = room.NewHub(validate.NewRegistry(), broker, s.loadBoard, s.boardChanged, s.boardClosed, log)
	return s
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The Redis store only carries the user id.
	if user.DisplayName == "" {
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) CreateBoard(ctx context.Context, session Session, name string) (store.Board, error) {
	boardName := strings.TrimSpace(name)
	if boardName == "" {
		boardName = "Untitled board"
	}

	b := store.Board{
		ID:        util.NewID("brd"),
		Name:      boardName,
		CreatedBy: session.UserID,
	}
	if err := s.store.CreateBoard(ctx, b); err != nil {
		return store.Board{}, err
	}
	if err := s.archive.EnsureBoardRepo(b.ID, session.UserName); err != nil {
		return store.Board{}, err
	}
	return b, nil
}

func (s *Service) ListBoards(ctx context.Context, session Session) ([]store.Board, error) {
	return s.store.ListBoardsForUser(ctx, session.UserID)
}

// GetBoard fetches the board and makes the caller a member. Anyone with the
// board id can join; the link is the invite.
func (s *Service) GetBoard(ctx context.Context, session Session, boardID string) (store.Board, store.Member, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, store.Member{}, domainError(http.StatusNotFound, "BOARD_NOT_FOUND", "Board not found", nil)
	}
	member, err := s.store.EnsureMembership(ctx, boardID, session.UserID)
	if err != nil {
		return store.Board{}, store.Member{}, err
	}
	return b, member, nil
}

func (s *Service) SearchBoard(ctx context.Context, session Session, boardID, text string, limit int) (search.Response, error) {
	if _, _, err := s.GetBoard(ctx, session, boardID); err != nil {
		return search.Response{}, err
	}
	return s.search.Search(search.Query{BoardID: boardID, Text: text, Limit: limit}), nil
}

func (s *Service) BoardHistory(ctx context.Context, session Session, boardID string, limit int) ([]archive.CommitInfo, error) {
	if _, _, err := s.GetBoard(ctx, session, boardID); err != nil {
		return nil, err
	}
	return s.archive.History(boardID, limit)
}

// ConnectBoard hands an upgraded websocket to the board's room. The member's
// private id travels with the connection so validators can seal and open
// anonymous poll votes on the caller's behalf.
func (s *Service) ConnectBoard(ctx context.Context, session Session, boardID string, conn *websocket.Conn) error {
	_, member, err := s.GetBoard(ctx, session, boardID)
	if err != nil {
		return err
	}
	return s.hub.Attach(boardID, conn, validate.Identity{
		UserID:    session.UserID,
		PrivateID: member.PrivateID,
		IsAdmin:   member.IsAdmin,
	})
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Shutdown() {
	s.hub.Shutdown()
}

func (s *Service) loadBoard(boardID string) ([]board.Node, error) {
	nodes, ok, err := s.archive.LoadSnapshot(boardID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Board created before archiving existed, or archive dir was wiped.
		if err := s.archive.EnsureBoardRepo(boardID, "system"); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nodes, nil
}

func (s *Service) boardChanged(boardID string, nodes []board.Node, by string) {
	s.search.IndexBoard(boardID, nodes)
	go func() {
		if _, err := s.archive.CommitSnapshot(boardID, nodes, by, "Board update"); err != nil {
			s.log.Error().Err(err).Str("board", boardID).Msg("archive snapshot failed")
		}
	}()
}

func (s *Service) boardClosed(boardID string, nodes []board.Node) {
	if _, err := s.archive.CommitSnapshot(boardID, nodes, "system", "Session ended"); err != nil {
		s.log.Error().Err(err).Str("board", boardID).Msg("final snapshot failed")
	}
}
