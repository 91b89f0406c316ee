package escrow

import (
	"net/http"

	"gigpay-bend/models"
	"gigpay-bend/utils"
	"gigpay-bend/utils/escrow"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Service represents the Escrow Service
type Service struct {
	escrow *escrow.Escrow
	logger *zap.Logger
}

// NewEscrowService returns a new escrow service
func NewEscrowService(e *escrow.Escrow, logger *zap.Logger) *Service {
	return &Service{escrow: e, logger: logger}
}

func pathIDs(w http.ResponseWriter, r *http.Request, names ...string) ([]primitive.ObjectID, bool) {
	vars := mux.Vars(r)
	ids := make([]primitive.ObjectID, len(names))
	for i, name := range names {
		id, err := primitive.ObjectIDFromHex(vars[name])
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid "+name)
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

func (s *Service) respond(w http.ResponseWriter, op, msg string, projectID primitive.ObjectID, wallet models.EscrowWallet, err error) {
	if err != nil {
		s.logger.Info(op+": rejected", zap.String("project_id", projectID.Hex()), zap.Error(err))
		utils.RespondWithAppError(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, msg, wallet)
}

// ViewWallet ...
func (s *Service) ViewWallet(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "projectId")
	if !ok {
		return
	}
	wallet, err := s.escrow.Get(r.Context(), ids[0])
	s.respond(w, "view_wallet", "", ids[0], wallet, err)
}

// LockFunds locks a contributor's funds in the project's wallet
func (s *Service) LockFunds(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "projectId")
	if !ok {
		return
	}
	var req models.LockFundsReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request data sent")
		return
	}
	userID, err1 := primitive.ObjectIDFromHex(req.UserID)
	bidID, err2 := primitive.ObjectIDFromHex(req.BidID)
	if err1 != nil || err2 != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid user or bid ID")
		return
	}

	wallet, err := s.escrow.LockFunds(r.Context(), escrow.LockRequest{
		ProjectID:  ids[0],
		UserID:     userID,
		BidID:      bidID,
		BidAmount:  req.BidAmount,
		BonusShare: req.BonusShare,
	})
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusCreated, "Funds locked", wallet)
}

// ReleaseFunds ...
func (s *Service) ReleaseFunds(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "projectId", "userId", "bidId")
	if !ok {
		return
	}
	wallet, err := s.escrow.ReleaseOne(r.Context(), ids[0], ids[1], ids[2])
	s.respond(w, "release_funds", "Funds released", ids[0], wallet, err)
}

// RefundFunds ...
func (s *Service) RefundFunds(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "projectId", "userId", "bidId")
	if !ok {
		return
	}
	wallet, err := s.escrow.RefundOne(r.Context(), ids[0], ids[1], ids[2])
	s.respond(w, "refund_funds", "Funds refunded", ids[0], wallet, err)
}

// CompleteProject releases every locked record and closes the wallet
func (s *Service) CompleteProject(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "projectId")
	if !ok {
		return
	}
	var req models.CompleteProjectReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request data sent")
		return
	}
	wallet, err := s.escrow.CompleteProject(r.Context(), ids[0], req.QualityScore, req.Notes)
	s.respond(w, "complete_project", "Project completed", ids[0], wallet, err)
}

// CancelWallet ...
func (s *Service) CancelWallet(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "projectId")
	if !ok {
		return
	}
	wallet, err := s.escrow.Cancel(r.Context(), ids[0])
	s.respond(w, "cancel_wallet", "Escrow cancelled", ids[0], wallet, err)
}

// SeedWallet moves a staged bonus pool into the project's wallet
func (s *Service) SeedWallet(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "projectId")
	if !ok {
		return
	}
	var req models.SeedWalletReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request data sent")
		return
	}
	poolID, err := primitive.ObjectIDFromHex(req.BonusPoolID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid bonus pool ID")
		return
	}
	wallet, err := s.escrow.SeedFromBonusPool(r.Context(), poolID, ids[0])
	s.respond(w, "seed_wallet", "Escrow seeded from bonus pool", ids[0], wallet, err)
}
