package debate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/logging"
)

// ExitCode is the process exit code mapped from a session's terminal
// outcome (spec.md §6.5).
type ExitCode int

const (
	ExitConsensusReached ExitCode = 0
	ExitFatalError       ExitCode = 1
	ExitDeadlock         ExitCode = 2
)

// Orchestrator drives a DebateSession through the agent-debate and (when
// reached) judge-evaluation phases to a terminal state (spec.md §4.7),
// grounded on the teacher's Runner/StateManager split in
// service/workflow/runner.go but collapsed into the two-phase loop this
// domain's state machine describes.
type Orchestrator struct {
	Runner        *RoundRunner
	CheckpointDir string
	Logger        *logging.Logger
}

// NewOrchestrator constructs an Orchestrator over a populated Adapter
// Registry. Logging defaults to a no-op logger; callers that want output
// set Logger explicitly (see cmd/quorum-debate/cmd).
func NewOrchestrator(registry *model.Registry) *Orchestrator {
	return &Orchestrator{Runner: NewRoundRunner(registry), Logger: logging.NewNop()}
}

// NewSession constructs a fresh DebateSession in phase=init with a
// time-ordered UUIDv7 id (spec.md §4.7, §3).
func NewSession(cfg config.Config) (*core.DebateSession, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, core.ErrConfiguration("SESSION_ID_GENERATION_FAILED", "failed to generate session id").WithCause(err)
	}
	cfg.ApplyDeterministicMode()
	return &core.DebateSession{
		ID:           id.String(),
		Topic:        cfg.Topic,
		InitialQuery: cfg.InitialQuery,
		Phase:        core.PhaseInit,
		Config:       cfg,
		Metadata: core.SessionMetadata{
			EngineVersion: EngineVersion,
			StartedAt:     time.Now().UTC(),
		},
	}, nil
}

// Run drives session to a terminal phase (resuming from whatever phase it
// is already in) and returns the assembled DebateOutput and the process
// exit code (spec.md §6.5). A non-nil error indicates a fatal condition
// (checkpoint write/integrity failure); the caller should exit 1.
func (o *Orchestrator) Run(ctx context.Context, session *core.DebateSession) (DebateOutput, ExitCode, error) {
	sm := NewStateManager(session)
	o.Runner.OnRetry = sm.RecordRetry
	log := o.Logger.With("session_id", session.ID)

	sessionCtx, cancel := context.WithTimeout(ctx, time.Duration(session.Config.Timeouts.SessionMs)*time.Millisecond)
	defer cancel()
	ctx = sessionCtx

	// partial builds and returns whatever output the session has accumulated
	// so far alongside a fatal error: spec.md §7 requires limit/integrity
	// breaches to retain partial output rather than discard it.
	partial := func(err error) (DebateOutput, ExitCode, error) {
		return BuildDebateOutput(session, session.Config.JudgePanelEnabled), ExitFatalError, err
	}

	if session.Phase == core.PhaseInit {
		sm.Transition(core.PhaseAgentDebate)
		if err := o.checkpoint(session); err != nil {
			return partial(err)
		}
	}

	if session.Phase == core.PhaseAgentDebate {
		if err := o.runAgentPhase(ctx, sm, log); err != nil {
			return partial(err)
		}
	}

	if session.Phase == core.PhaseJudgeEvaluation {
		if err := o.runJudgePhase(ctx, sm, log); err != nil {
			return partial(err)
		}
	}

	output := BuildDebateOutput(session, session.Config.JudgePanelEnabled)
	log.Info("debate finished", "phase", session.Phase, "exit_code", exitCodeFor(session))
	return output, exitCodeFor(session), nil
}

func (o *Orchestrator) checkpoint(session *core.DebateSession) error {
	if o.CheckpointDir == "" {
		return nil
	}
	return WriteCheckpoint(o.CheckpointDir, session)
}

// runAgentPhase implements spec.md §4.7's agent phase loop.
func (o *Orchestrator) runAgentPhase(ctx context.Context, sm *StateManager, log *logging.Logger) error {
	session := sm.Session()
	cfg := session.Config

	var candidateID, candidateText string

	for session.CurrentAgentRound() <= cfg.MaxAgentRounds {
		if err := ctx.Err(); err != nil {
			return core.ErrLimitExceeded("SESSION_TIMEOUT_EXCEEDED",
				fmt.Sprintf("session exceeded its %dms timeout budget", cfg.Timeouts.SessionMs)).WithCause(err)
		}

		roundNumber := session.CurrentAgentRound()

		if roundNumber > 1 {
			last := session.LastAgentRound()
			candidateID, candidateText = SelectCandidate(last.Responses)
		}

		log.Info("starting agent round", "round", roundNumber, "candidate_id", candidateID)

		roundCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeouts.RoundMs)*time.Millisecond)
		responses := o.Runner.RunAgentRound(roundCtx, cfg, cfg.Agents, roundNumber, candidateID, candidateText, session.AgentRounds)
		cancel()

		for _, r := range responses {
			sm.RecordUsage(r.TokenUsage, 0, false)
			if r.Status == core.StatusError {
				sm.RecordError()
			}
		}

		if err := sm.CheckLimits(); err != nil {
			return err
		}

		consensus := EvaluateAgentConsensus(responses, candidateID, cfg.ConsensusThreshold)
		round := core.RoundResult{
			RoundNumber:      roundNumber,
			Responses:        responses,
			ConsensusReached: consensus.Reached,
			VoteTally:        consensus.Tally,
			Timestamp:        time.Now().UTC(),
		}
		if roundNumber > 1 && candidateID != "" {
			id, text := candidateID, candidateText
			round.CandidatePositionID = &id
			round.CandidatePositionText = &text
		}
		if consensus.Reached {
			id, text := consensus.PositionID, consensus.PositionText
			round.ConsensusPositionID = &id
			round.ConsensusPositionText = &text
		}
		sm.AppendAgentRound(round)
		log.Info("agent round complete", "round", roundNumber, "consensus_reached", consensus.Reached, "yes", consensus.Tally.Yes, "no", consensus.Tally.No, "abstain", consensus.Tally.Abstain)

		if err := o.checkpoint(session); err != nil {
			return err
		}

		if consensus.Reached {
			sm.SetFinalVerdict(core.FinalVerdict{
				PositionID:   consensus.PositionID,
				PositionText: consensus.PositionText,
				Confidence:   meanConfidenceOfYesVoters(responses, consensus.PositionID),
				Source:       core.SourceAgentConsensus,
			})
			sm.Transition(core.PhaseConsensusReached)
			return nil
		}
	}

	positions := collectPositionsSet(session.AgentRounds, cfg.JudgePositionsScope)

	if cfg.JudgePanelEnabled && len(positions) >= 2 && len(cfg.Judges) >= config.MinJudgesWhenEnabled {
		log.Info("agent rounds exhausted without consensus, falling through to judge panel", "distinct_positions", len(positions))
		sm.Transition(core.PhaseJudgeEvaluation)
		return nil
	}

	bestID, bestText := "", ""
	var confidence float64
	if last := session.LastAgentRound(); last != nil {
		bestID, bestText = SelectCandidate(last.Responses)
		confidence = meanConfidenceOfYesVoters(last.Responses, bestID)
	}
	sm.SetFinalVerdict(core.FinalVerdict{
		PositionID:   bestID,
		PositionText: bestText,
		Confidence:   confidence,
		Source:       core.SourceDeadlock,
	})
	log.Info("agent debate deadlocked without judge panel", "best_position_id", bestID)
	sm.Transition(core.PhaseDeadlock)
	return nil
}

// runJudgePhase implements spec.md §4.7's judge phase loop.
func (o *Orchestrator) runJudgePhase(ctx context.Context, sm *StateManager, log *logging.Logger) error {
	session := sm.Session()
	cfg := session.Config

	positions := collectPositionsSet(session.AgentRounds, cfg.JudgePositionsScope)
	positionText := func(id string) string {
		for _, p := range positions {
			if p.ID == id {
				return p.Text
			}
		}
		return ""
	}

	for session.CurrentJudgeRound() <= cfg.MaxJudgeRounds {
		if err := ctx.Err(); err != nil {
			return core.ErrLimitExceeded("SESSION_TIMEOUT_EXCEEDED",
				fmt.Sprintf("session exceeded its %dms timeout budget", cfg.Timeouts.SessionMs)).WithCause(err)
		}

		roundNumber := session.CurrentJudgeRound()
		log.Info("starting judge round", "round", roundNumber, "candidate_positions", len(positions))

		roundCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeouts.RoundMs)*time.Millisecond)
		evaluations := o.Runner.RunJudgeRound(roundCtx, cfg, cfg.Judges, roundNumber, positions)
		cancel()

		for _, e := range evaluations {
			sm.RecordUsage(e.TokenUsage, 0, false)
			if e.Status == core.StatusError {
				sm.RecordError()
			}
		}

		if err := sm.CheckLimits(); err != nil {
			return err
		}

		consensus := EvaluateJudgeConsensus(evaluations, cfg.JudgeConsensusThreshold, cfg.JudgeMinConfidence, positionText)
		round := core.JudgeRoundResult{
			RoundNumber:          roundNumber,
			Evaluations:          evaluations,
			ConsensusReached:     consensus.Reached,
			RequiredVotes:        consensus.RequiredVotes,
			WinnerVotes:          consensus.WinnerVotes,
			WinnerMeanConfidence: consensus.MeanConfidence,
			Dissents:             consensus.Dissents,
			Timestamp:            time.Now().UTC(),
		}
		if consensus.WinnerID != "" {
			id, text := consensus.WinnerID, consensus.WinnerText
			round.WinnerPositionID = &id
			round.WinnerPositionText = &text
		}
		sm.AppendJudgeRound(round)
		log.Info("judge round complete", "round", roundNumber, "consensus_reached", consensus.Reached, "winner_votes", consensus.WinnerVotes)

		if err := o.checkpoint(session); err != nil {
			return err
		}

		if consensus.Reached {
			sm.SetFinalVerdict(core.FinalVerdict{
				PositionID:   consensus.WinnerID,
				PositionText: consensus.WinnerText,
				Confidence:   consensus.MeanConfidence,
				Source:       core.SourceJudgeConsensus,
			})
			sm.Transition(core.PhaseConsensusReached)
			return nil
		}
	}

	verdictID, verdictText, verdictConfidence := "", "", 0.0
	if len(session.JudgeRounds) > 0 {
		last := session.JudgeRounds[len(session.JudgeRounds)-1]
		if last.WinnerPositionID != nil {
			verdictID = *last.WinnerPositionID
		}
		if last.WinnerPositionText != nil {
			verdictText = *last.WinnerPositionText
		}
		verdictConfidence = last.WinnerMeanConfidence
	}
	sm.SetFinalVerdict(core.FinalVerdict{
		PositionID:   verdictID,
		PositionText: verdictText,
		Confidence:   verdictConfidence,
		Source:       core.SourceDeadlock,
	})
	log.Info("judge panel deadlocked", "best_position_id", verdictID)
	sm.Transition(core.PhaseDeadlock)
	return nil
}

func meanConfidenceOfYesVoters(responses []core.AgentResponse, positionID string) float64 {
	if positionID == "" {
		return 0
	}
	var sum float64
	var n int
	for _, r := range responses {
		if r.Vote == core.VoteYes && r.PositionID != nil && *r.PositionID == positionID {
			sum += r.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// collectPositionsSet gathers the distinct positions judges vote over
// (spec.md §4.7, §9 judgePositionsScope decision): membership is scoped to
// either all agent rounds or only the last one, but each position's text is
// resolved from wherever in the session it was first proposed, since the
// same positionId may recur across rounds without repeating its text.
func collectPositionsSet(allRounds []core.RoundResult, scope string) []judgedPosition {
	textByID := map[string]string{}
	for _, round := range allRounds {
		for _, r := range round.Responses {
			if r.PositionID != nil && r.PositionText != "" {
				if _, ok := textByID[*r.PositionID]; !ok {
					textByID[*r.PositionID] = r.PositionText
				}
			}
		}
		if round.CandidatePositionID != nil && round.CandidatePositionText != nil {
			if _, ok := textByID[*round.CandidatePositionID]; !ok {
				textByID[*round.CandidatePositionID] = *round.CandidatePositionText
			}
		}
	}

	var scoped []core.RoundResult
	if scope == config.ScopeLastRound {
		if len(allRounds) > 0 {
			scoped = allRounds[len(allRounds)-1:]
		}
	} else {
		scoped = allRounds
	}

	seen := map[string]bool{}
	var out []judgedPosition
	for _, round := range scoped {
		for _, r := range round.Responses {
			if !r.Eligible() || r.PositionID == nil {
				continue
			}
			id := *r.PositionID
			if seen[id] {
				continue
			}
			text, ok := textByID[id]
			if !ok {
				continue
			}
			seen[id] = true
			out = append(out, judgedPosition{ID: id, Text: text})
		}
	}
	return out
}

func exitCodeFor(session *core.DebateSession) ExitCode {
	switch session.Phase {
	case core.PhaseConsensusReached:
		return ExitConsensusReached
	case core.PhaseDeadlock:
		return ExitDeadlock
	default:
		return ExitFatalError
	}
}
