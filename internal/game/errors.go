package game

import "errors"

// Intent errors. Every intent that returns one of these left the game
// exactly as it was.
var (
	ErrNoGame                = errors.New("no game has been dealt")
	ErrGameInProgress        = errors.New("game already in progress")
	ErrIllegalMove           = errors.New("illegal move")
	ErrStockEmpty            = errors.New("stock is empty")
	ErrNothingToRecycle      = errors.New("nothing to recycle")
	ErrCardNotDraggable      = errors.New("card cannot be dragged")
	ErrCardFaceDown          = errors.New("card is face down")
	ErrNoDrag                = errors.New("no drag in progress")
	ErrNothingToUndo         = errors.New("nothing to undo")
	ErrNoHint                = errors.New("no hint available")
	ErrStaleHint             = errors.New("hint has been superseded")
	ErrNoConfirmationPending = errors.New("no confirmation pending")
	ErrAutoFinishUnavailable = errors.New("auto-finish not available")
)
