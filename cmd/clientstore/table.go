package main

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/olekukonko/tablewriter"
)

func borderlessTabularTable(writer io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(writer)
	table.SetRowLine(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	return table
}

func printTable(w io.Writer, columns []string, data [][]string) {
	table := borderlessTabularTable(w)
	table.SetHeader(columns)
	table.AppendBulk(data)
	table.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatLabels(labels []fleet.ClientLabel) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.Owner+":"+l.Name)
	}
	return strings.Join(parts, ",")
}

func clientRows(infos []*fleet.ClientFullInfo) [][]string {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		md := info.Metadata
		var hostname, osName, version string
		if info.LastSnapshot != nil {
			hostname = info.LastSnapshot.KnowledgeBase.FQDN
			osName = info.LastSnapshot.KnowledgeBase.OS
		}
		if info.LastStartupInfo != nil && info.LastStartupInfo.ClientInfo.ClientVersion != 0 {
			version = strconv.FormatUint(uint64(info.LastStartupInfo.ClientInfo.ClientVersion), 10)
		}
		rows = append(rows, []string{
			md.ClientID,
			hostname,
			osName,
			version,
			md.IP.String(),
			formatTime(md.Ping),
			formatLabels(info.Labels),
		})
	}
	return rows
}

var clientColumns = []string{"Client ID", "Hostname", "OS", "Version", "IP", "Last ping", "Labels"}

func historyRows(recs []fleet.ClientRecord) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		ts := rec.RecordTimestamp()
		var summary string
		switch r := rec.(type) {
		case *fleet.ClientSnapshot:
			summary = strings.TrimSpace(r.KnowledgeBase.FQDN + " " + r.Kernel)
		case *fleet.StartupInfo:
			summary = strings.TrimSpace(r.ClientInfo.ClientName + " " + strconv.FormatUint(uint64(r.ClientInfo.ClientVersion), 10))
		case *fleet.ClientCrash:
			summary = strings.TrimSpace(r.CrashType + " " + r.CrashMessage)
		}
		rows = append(rows, []string{formatTime(&ts), rec.Kind().String(), summary})
	}
	return rows
}

var historyColumns = []string{"Timestamp", "Kind", "Summary"}
