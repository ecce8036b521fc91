package handler

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/api/dto"
	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	periodicityField = "periodicity"
	// Period form fields are split in a unit and a value
	unitSuffix  = "_0"
	valueSuffix = "_1"
)

// referenceRunLayouts are tried in order; datetimes without zone are UTC
var referenceRunLayouts = []string{
	time.RFC3339Nano,
	jobs.ISO8601Layout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
}

// bindEditRequest reads a schedule edit from a JSON body or an urlencoded form
func bindEditRequest(c *gin.Context) (jobs.EditRequest, error) {
	var req dto.EditJobRequest
	if c.ContentType() == binding.MIMEJSON {
		if err := c.ShouldBindJSON(&req); err != nil {
			return jobs.EditRequest{}, err
		}
	} else {
		if err := c.Request.ParseForm(); err != nil {
			return jobs.EditRequest{}, err
		}
		parsed, err := editRequestFromForm(c.Request.PostForm)
		if err != nil {
			return jobs.EditRequest{}, err
		}
		if err := binding.Validator.ValidateStruct(parsed); err != nil {
			return jobs.EditRequest{}, err
		}
		req = *parsed
	}

	out := jobs.EditRequest{
		Periodicity: req.Periodicity.Period(),
		Data:        req.Data,
	}
	if req.ReferenceRun != "" {
		t, err := parseReferenceRun(req.ReferenceRun)
		if err != nil {
			return jobs.EditRequest{}, err
		}
		out.ReferenceRun = &t
	}
	return out, nil
}

func editRequestFromForm(form url.Values) (*dto.EditJobRequest, error) {
	req := &dto.EditJobRequest{
		ReferenceRun: strings.TrimSpace(form.Get("reference_run")),
	}

	for key := range form {
		name, ok := strings.CutSuffix(key, unitSuffix)
		if !ok {
			continue
		}

		p, err := formPeriod(form, name)
		if err != nil {
			return nil, err
		}
		if name == periodicityField {
			req.Periodicity = p
			continue
		}

		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if req.Data == nil {
			req.Data = make(map[string]json.RawMessage)
		}
		req.Data[name] = raw
	}

	return req, nil
}

func formPeriod(form url.Values, name string) (*dto.PeriodDTO, error) {
	rawValue := strings.TrimSpace(form.Get(name + valueSuffix))
	value, err := strconv.Atoi(rawValue)
	if err != nil {
		return nil, &jobs.ValidationError{Field: name, Message: "enter a whole number"}
	}
	return &dto.PeriodDTO{
		Type:  strings.TrimSpace(form.Get(name + unitSuffix)),
		Value: value,
	}, nil
}

func parseReferenceRun(value string) (time.Time, error) {
	for _, layout := range referenceRunLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &jobs.ValidationError{Field: "reference_run", Message: "enter a valid date/time"}
}
