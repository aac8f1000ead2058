package telephony

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MillerSebastian/telegram-call/internal/flow"
	"github.com/MillerSebastian/telegram-call/internal/twiml"
	"github.com/MillerSebastian/telegram-call/pkg/logger"

	"github.com/gin-gonic/gin"
)

// VoiceHandlers renders the IVR flow as TwiML. The handlers convert webhook
// forms to engine calls and engine results back to verbs; flow decisions are
// not made here.
//
// Redirect targets are relative; the provider resolves them against the
// webhook origin.
type VoiceHandlers struct {
	Engine *flow.Engine
	Status *StatusService
}

// Spoken texts outside the step configuration.
const (
	sayContinuing      = "Continuing."
	sayThanksValidate  = "Thank you. We are validating your information. Please wait a few moments."
	sayThanksRevalid   = "Thank you. We are validating your updated information. Please wait a few moments."
	sayWaitingInitial  = "We are validating your information. Please wait a few moments."
	sayWaitingRevalid  = "We are validating your updated information. Please wait a few moments."
	sayAccepted        = "Verification completed successfully. All data is correct. Thank you for your patience."
	sayProblemDetected = "We have detected some problems with the information provided."
	sayNoDecision      = "We are sorry, we have not received validation after several attempts. Ending the call."
	sayTooManyRejects  = "We are sorry, we could not verify your information. Ending the call."
	sayGenericError    = "We are sorry, an error occurred. Ending the call."
)

// Rotating hold announcements; index comes from the wait counter.
var waitAnnouncements = [3]string{
	"We are still validating your information. Thank you for your patience.",
	"The verification process is continuing. Please wait one more moment.",
	"Your information is being processed. Validation is in progress.",
}

// PromptStep speaks the gather prompt for a collection step.
// GET|POST /voice/step/:field
func (h VoiceHandlers) PromptStep(c *gin.Context) {
	field := c.Param("field")
	_, step, _, ok := h.Engine.Config().StepByField(field)
	if !ok {
		h.renderTerminalError(c)
		return
	}

	res := twiml.New()
	res.Gather(twiml.GatherOptions{
		NumDigits:       step.Digits,
		Action:          "/voice/collect/" + step.Field,
		TimeoutSeconds:  step.GatherTimeoutSeconds,
		Prompts:         []string{step.Prompt, step.EntryPrompt},
		PauseAfterFirst: true,
	})
	// No input within the timeout loops back to the same prompt.
	res.Redirect("/voice/step/" + step.Field)
	h.render(c, res)
}

// CollectStep receives gathered digits and advances the flow.
// POST /voice/collect/:field
func (h VoiceHandlers) CollectStep(c *gin.Context) {
	log := logger.FromGin(c)
	field := c.Param("field")
	callID := callIDFrom(c)
	digits := strings.TrimSpace(firstValue(c, "Digits"))

	if callID == "" {
		log.Error("collect without CallSid", "field", field)
		h.renderTerminalError(c)
		return
	}
	if digits == "" {
		h.render(c, twiml.New().Redirect("/voice/step/"+field))
		return
	}

	log.Info("digits received", "call_id", callID, "field", field, "len", len(digits))

	save, err := h.Engine.SaveDigits(c.Request.Context(), callID, field, digits)
	if err != nil {
		log.Error("save digits failed", "call_id", callID, "field", field, "err", err)
		h.renderTerminalError(c)
		return
	}

	res := twiml.New()
	res.Say("You entered " + spellDigits(save.Digits) + ".")
	if save.PauseSeconds > 0 {
		res.Pause(save.PauseSeconds)
	}

	switch {
	case save.AwaitStage != "":
		if save.Revalidation {
			res.Say(sayThanksRevalid)
		} else {
			res.Say(sayThanksValidate)
		}
		res.Redirect(waitingURL(save.AwaitStage, save.Revalidation))
	case save.Next != nil:
		res.Say(sayContinuing)
		res.Redirect("/voice/step/" + save.Next.Field)
	default:
		h.renderTerminalError(c)
		return
	}
	h.render(c, res)
}

// Waiting speaks a hold announcement, pauses, and re-enters the decision
// poll. A decision that already arrived short-circuits the pause.
// GET|POST /voice/waiting
func (h VoiceHandlers) Waiting(c *gin.Context) {
	callID := callIDFrom(c)
	if callID == "" {
		h.renderTerminalError(c)
		return
	}
	stage := h.stageFrom(c)
	revalidation := firstValue(c, "revalidation") == "true"

	res := twiml.New()
	if h.Engine.HasDecision(callID, stage) {
		res.Redirect(decisionURL(stage))
		h.render(c, res)
		return
	}

	if revalidation {
		res.Say(sayWaitingRevalid)
	} else {
		res.Say(sayWaitingInitial)
	}
	res.Pause(h.Engine.Config().WaitSeconds)
	res.Redirect(decisionURL(stage))
	h.render(c, res)
}

// Decision runs one poll of the await-decision protocol.
// GET|POST /voice/decision
func (h VoiceHandlers) Decision(c *gin.Context) {
	log := logger.FromGin(c)
	callID := callIDFrom(c)
	if callID == "" {
		log.Error("decision poll without CallSid")
		h.renderTerminalError(c)
		return
	}
	stage := h.stageFrom(c)

	poll, err := h.Engine.Poll(c.Request.Context(), callID, stage)
	if err != nil {
		log.Error("decision poll failed", "call_id", callID, "stage", stage, "err", err)
		h.renderTerminalError(c)
		return
	}

	res := twiml.New()
	switch poll.Outcome {
	case flow.OutcomeAccepted:
		res.Say(sayAccepted)
	case flow.OutcomeCorrect:
		res.Say(sayProblemDetected)
		res.Say(poll.CorrectStep.RejectedPrompt)
		res.Redirect("/voice/step/" + poll.CorrectStep.Field)
	case flow.OutcomeWaiting:
		res.Say(waitAnnouncements[poll.WaitIndex])
		res.Pause(poll.WaitSeconds)
		res.Redirect(decisionURL(stage))
	case flow.OutcomeAbortedNoDecision:
		res.Say(sayNoDecision)
	case flow.OutcomeAbortedCorrections:
		res.Say(sayTooManyRejects)
	}
	h.render(c, res)
}

// StatusCallback receives lifecycle updates. It always acknowledges, even
// for unknown ids or unparsable fields; the provider retries on errors and
// there is nothing useful to retry here.
// POST /voice/status
func (h VoiceHandlers) StatusCallback(c *gin.Context) {
	callID := callIDFrom(c)
	if callID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	rawStatus := firstValue(c, "CallStatus")
	duration, _ := strconv.Atoi(firstValue(c, "CallDuration"))

	h.Status.HandleStatus(c.Request.Context(), callID, rawStatus, duration)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h VoiceHandlers) stageFrom(c *gin.Context) string {
	if stage := firstValue(c, "stage"); stage != "" {
		return stage
	}
	// Single-batch flows never carry a stage parameter.
	if len(h.Engine.Config().Batches) > 0 {
		return h.Engine.Config().Batches[0].Stage
	}
	return ""
}

func (h VoiceHandlers) render(c *gin.Context, res *twiml.Response) {
	doc, err := res.Render()
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.String(http.StatusInternalServerError, "render error")
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(doc))
}

func (h VoiceHandlers) renderTerminalError(c *gin.Context) {
	res := twiml.New().Say(sayGenericError).Hangup()
	h.render(c, res)
}

// callIDFrom reads the provider call id from form or query.
func callIDFrom(c *gin.Context) string {
	return strings.TrimSpace(firstValue(c, "CallSid"))
}

// firstValue checks POST form values then the query string, mirroring how
// the provider mixes both on redirects.
func firstValue(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}

func waitingURL(stage string, revalidation bool) string {
	u := "/voice/waiting?stage=" + stage
	if revalidation {
		u += "&revalidation=true"
	}
	return u
}

func decisionURL(stage string) string {
	return "/voice/decision?stage=" + stage
}

// spellDigits renders digits for speech, one at a time.
func spellDigits(digits string) string {
	return strings.Join(strings.Split(digits, ""), ", ")
}
