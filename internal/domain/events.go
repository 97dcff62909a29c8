package domain

// Inbound event names handled by the orchestrator.
const (
	EvtCreateSession     = "createSession"
	EvtToggleAutoAdvance = "toggleAutoAdvance"
	EvtJoinSession       = "joinSession"
	EvtStartSession      = "startSession"
	EvtSubmitAnswer      = "submitAnswer"
	EvtAdvanceQuestion   = "advanceQuestion"
)

// Outbound event names emitted by the orchestrator.
const (
	EvtSessionCreated    = "sessionCreated"
	EvtJoinAccepted      = "joinAccepted"
	EvtJoinRejected      = "joinRejected"
	EvtPlayerListUpdated = "playerListUpdated"
	EvtQuestionPresented = "questionPresented"
	EvtTimeUp            = "timeUp"
	EvtAnswerAccepted    = "answerAccepted"
	EvtGameOver          = "gameOver"
)
