package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"triage/core"
)

// build constructs the detection and its contexts through the core constructors,
// so every core invariant applies to loaded documents too
func (l *Loader) build(doc *DetectionDocument) (*core.Detection, error) {
	d := core.Detection{
		VendorID:    doc.VendorID,
		Name:        doc.Name,
		Timestamp:   doc.Timestamp,
		Description: doc.Description,
		Tags:        doc.Tags,
		Raw:         doc.Raw,
		Source:      doc.Source,
		Severity:    doc.Severity,
	}

	for i := range doc.Rules {
		r, err := l.buildRule(&doc.Rules[i])
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		d.Rules = append(d.Rules, r)
	}

	var err error
	if doc.Flow != nil {
		if d.Flow, err = buildFlow(doc.Flow); err != nil {
			return nil, fmt.Errorf("flow: %w", err)
		}
	}
	if doc.Process != nil {
		if d.Process, err = buildProcess(doc.Process); err != nil {
			return nil, fmt.Errorf("process: %w", err)
		}
	}
	if doc.File != nil {
		if d.File, err = buildFile(doc.File); err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}
	}
	if doc.Log != nil {
		if d.Log, err = buildLog(doc.Log); err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
	}
	if doc.Device != nil {
		if d.Device, err = buildDevice(doc.Device); err != nil {
			return nil, fmt.Errorf("device: %w", err)
		}
	}
	if doc.Location != nil {
		if d.Location, err = buildLocation(doc.Location); err != nil {
			return nil, fmt.Errorf("location: %w", err)
		}
	}
	if doc.User != nil {
		if d.User, err = core.NewPerson(core.Person{
			Name:               doc.User.Name,
			Email:              doc.User.Email,
			Phone:              doc.User.Phone,
			Roles:              doc.User.Roles,
			Tags:               doc.User.Tags,
			DetectionRelevance: doc.User.DetectionRelevance,
		}); err != nil {
			return nil, fmt.Errorf("user: %w", err)
		}
	}
	if doc.Registry != nil {
		if d.Registry, err = core.NewContextRegistry(core.ContextRegistry{
			Timestamp:          doc.Registry.Timestamp,
			Action:             core.RegistryAction(doc.Registry.Action),
			Key:                doc.Registry.Key,
			Value:              doc.Registry.Value,
			Data:               doc.Registry.Data,
			DataType:           doc.Registry.DataType,
			Hive:               doc.Registry.Hive,
			Path:               doc.Registry.Path,
			DetectionRelevance: doc.Registry.DetectionRelevance,
		}); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
	}

	return core.NewDetection(d)
}

func (l *Loader) buildRule(doc *RuleDocument) (*core.Rule, error) {
	id, coerced, err := coerceRuleID(doc.ID)
	if err != nil {
		return nil, err
	}
	if coerced {
		l.logger.Warnw("Rule id is not a string, coercing", "rule", doc.Name, "id", id)
	}
	return core.NewRule(core.Rule{
		ID:              id,
		Name:            doc.Name,
		Severity:        doc.Severity,
		Description:     doc.Description,
		Tags:            doc.Tags,
		Raw:             doc.Raw,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		FalsePositives:  doc.FalsePositives,
		Query:           doc.Query,
		MitreTactics:    doc.MitreTactics,
		MitreTechniques: doc.MitreTechniques,
	})
}

// coerceRuleID returns the rule id as a string and whether it had to be converted
func coerceRuleID(v interface{}) (string, bool, error) {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id), false, nil
	case json.Number:
		return id.String(), true, nil
	case nil:
		return "", false, fmt.Errorf("%w: rule id is required", core.ErrValidation)
	}
	return "", false, fmt.Errorf("%w: rule id must be a string or number (got %T)", core.ErrType, v)
}

func buildFlow(doc *FlowDocument) (*core.ContextFlow, error) {
	f := core.ContextFlow{
		Timestamp:           doc.Timestamp,
		Integration:         doc.Integration,
		SourceIP:            doc.SourceIP,
		SourcePort:          doc.SourcePort,
		DestinationIP:       doc.DestinationIP,
		DestinationPort:     doc.DestinationPort,
		Protocol:            doc.Protocol,
		Application:         doc.Application,
		SourceHostname:      doc.SourceHostname,
		DestinationHostname: doc.DestinationHostname,
		SourceBytes:         doc.SourceBytes,
		DestinationBytes:    doc.DestinationBytes,
		FirewallAction:      doc.FirewallAction,
		DetectionRelevance:  doc.DetectionRelevance,
	}

	if h := doc.HTTP; h != nil {
		tx := core.HTTPTransaction{
			Method:        core.HTTPMethod(strings.ToUpper(h.Method)),
			Type:          core.HTTPType(h.Type),
			Host:          h.Host,
			Path:          h.Path,
			FullURL:       h.FullURL,
			StatusCode:    h.StatusCode,
			UserAgent:     h.UserAgent,
			Referer:       h.Referer,
			RequestBody:   h.RequestBody,
			ResponseBody:  h.ResponseBody,
			StatusMessage: h.StatusMessage,
			Timestamp:     doc.Timestamp,
		}
		if h.File != nil {
			file, err := buildFile(h.File)
			if err != nil {
				return nil, fmt.Errorf("http file: %w", err)
			}
			tx.File = file
		}
		built, err := core.NewHTTPTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("http: %w", err)
		}
		f.HTTP = built
	}

	if q := doc.DNS; q != nil {
		built, err := core.NewDNSQuery(core.DNSQuery{
			Type:          core.DNSQueryType(strings.ToUpper(q.Type)),
			Query:         q.Query,
			HasResponse:   q.HasResponse,
			QueryResponse: q.QueryResponse,
			Rcode:         q.Rcode,
			Timestamp:     doc.Timestamp,
		})
		if err != nil {
			return nil, fmt.Errorf("dns: %w", err)
		}
		f.DNSQuery = built
	}

	return core.NewContextFlow(f)
}

func buildProcess(doc *ProcessDocument) (*core.ContextProcess, error) {
	return core.NewContextProcess(core.ContextProcess{
		ProcessUUID:        doc.ProcessUUID,
		Timestamp:          doc.Timestamp,
		Name:               doc.Name,
		PID:                doc.PID,
		ParentName:         doc.ParentName,
		ParentPID:          doc.ParentPID,
		Path:               doc.Path,
		CommandLine:        doc.CommandLine,
		Username:           doc.Username,
		MD5:                doc.MD5,
		SHA1:               doc.SHA1,
		SHA256:             doc.SHA256,
		Parent:             doc.Parent,
		Children:           doc.Children,
		Arguments:          doc.Arguments,
		DetectionRelevance: doc.DetectionRelevance,
	})
}

func buildFile(doc *FileDocument) (*core.ContextFile, error) {
	return core.NewContextFile(core.ContextFile{
		Name:               doc.Name,
		Path:               doc.Path,
		Size:               doc.Size,
		MD5:                doc.MD5,
		SHA1:               doc.SHA1,
		SHA256:             doc.SHA256,
		Type:               doc.Type,
		Extension:          doc.Extension,
		Action:             doc.Action,
		DetectionRelevance: doc.DetectionRelevance,
	})
}

func buildLog(doc *LogDocument) (*core.ContextLog, error) {
	return core.NewContextLog(core.ContextLog{
		Timestamp:          doc.Timestamp,
		Message:            doc.Message,
		SourceName:         doc.SourceName,
		SourceIP:           doc.SourceIP,
		Protocol:           doc.Protocol,
		Type:               doc.Type,
		Severity:           doc.Severity,
		Facility:           doc.Facility,
		Tags:               doc.Tags,
		CustomFields:       doc.CustomFields,
		DetectionRelevance: doc.DetectionRelevance,
	})
}

func buildDevice(doc *DeviceDocument) (*core.ContextDevice, error) {
	return core.NewContextDevice(core.ContextDevice{
		Name:               doc.Name,
		LocalIP:            doc.LocalIP,
		GlobalIP:           doc.GlobalIP,
		IPs:                doc.IPs,
		MAC:                doc.MAC,
		OS:                 doc.OS,
		OSVersion:          doc.OSVersion,
		Type:               doc.Type,
		Domains:            doc.Domains,
		Network:            doc.Network,
		Tags:               doc.Tags,
		DetectionRelevance: doc.DetectionRelevance,
	})
}

func buildLocation(doc *LocationDocument) (*core.Location, error) {
	return core.NewLocation(core.Location{
		Country:            doc.Country,
		City:               doc.City,
		Latitude:           doc.Latitude,
		Longitude:          doc.Longitude,
		Timezone:           doc.Timezone,
		ASN:                doc.ASN,
		Org:                doc.Org,
		Certainty:          doc.Certainty,
		DetectionRelevance: doc.DetectionRelevance,
	})
}
