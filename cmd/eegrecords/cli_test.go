package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("eegrecords command", func() {
	var (
		dir    string
		stdout *bytes.Buffer
		stderr *bytes.Buffer
	)

	run := func(args ...string) error {
		stdout.Reset()
		stderr.Reset()
		cmd := NewRootCmd()
		cmd.SetOut(stdout)
		cmd.SetErr(stderr)
		base := []string{
			"--storage-driver", "sqlite",
			"--sqlite", filepath.Join(dir, "records.db"),
			"--blob-driver", "fs",
			"--media-root", filepath.Join(dir, "media"),
		}
		cmd.SetArgs(append(args, base...))
		return cmd.ExecuteContext(context.Background())
	}

	decode := func(v any) {
		ExpectWithOffset(1, json.Unmarshal(stdout.Bytes(), v)).To(Succeed())
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	Describe("seed", func() {
		It("seeds the demo batch and converges on rerun", func() {
			Expect(run("seed", "--demo", "-o", "json")).To(Succeed())
			var first map[string]int
			decode(&first)
			Expect(first).To(Equal(map[string]int{"patients_affected": 3, "sessions_affected": 4, "files_created": 4}))

			Expect(run("seed", "--demo", "-o", "json")).To(Succeed())
			var second map[string]int
			decode(&second)
			Expect(second).To(Equal(map[string]int{"patients_affected": 3, "sessions_affected": 4, "files_created": 0}))

			entries, err := os.ReadDir(filepath.Join(dir, "media", "eeg_files"))
			Expect(err).NotTo(HaveOccurred())
			stored := 0
			for _, e := range entries {
				if !strings.HasSuffix(e.Name(), ".meta") {
					stored++
				}
			}
			Expect(stored).To(Equal(4))
		})

		It("seeds from a JSON file", func() {
			path := filepath.Join(dir, "batch.json")
			Expect(os.WriteFile(path, []byte(`[{"full_name":"A","birth_date":"1990-01-01","contact_info":"","sessions":[{"days_ago":1,"duration_minutes":20,"technician":"T","conclusion":"ok"}]}]`), 0o600)).To(Succeed())
			Expect(run("seed", "--file", path)).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("Patients created/updated:"))
			Expect(stdout.String()).To(ContainSubstring("Files created:"))
		})

		It("reports the failing index and persists nothing", func() {
			path := filepath.Join(dir, "bad.yaml")
			Expect(os.WriteFile(path, []byte(`
- full_name: A
  birth_date: 1990-01-01
  sessions:
    - {days_ago: 1, duration_minutes: 20, technician: T}
    - {days_ago: 2, duration_minutes: -1, technician: T}
`), 0o600)).To(Succeed())
			err := run("seed", "--file", path)
			Expect(err).To(MatchError(ContainSubstring("seed patient 0 session 1")))

			Expect(run("summary", "-o", "json")).To(Succeed())
			var sum map[string]any
			decode(&sum)
			Expect(sum["patients"]).To(BeEquivalentTo(0))
		})

		It("round-trips the demo file", func() {
			path := filepath.Join(dir, "demo.toml")
			Expect(run("seed", "demo-file", path)).To(Succeed())
			Expect(path).To(BeAnExistingFile())
			Expect(run("seed", "-f", path, "-o", "json")).To(Succeed())
			var report map[string]int
			decode(&report)
			Expect(report["files_created"]).To(Equal(4))
		})

		It("requires a source", func() {
			Expect(run("seed")).To(MatchError(ContainSubstring("nothing to seed")))
		})

		It("rejects --file together with --demo", func() {
			Expect(run("seed", "--demo", "--file", "x.yaml")).To(HaveOccurred())
		})
	})

	Describe("interactive records", func() {
		It("creates, attaches, shows and deletes", func() {
			Expect(run("patients", "create", "--name", "Jane Roe", "--birth-date", "1985-07-04", "-o", "json")).To(Succeed())
			var patient map[string]any
			decode(&patient)
			patientID := patient["id"].(string)

			Expect(run("sessions", "create", "--patient", patientID, "--start", "2024-05-01T09:00:00Z", "--technician", "T", "-o", "json")).To(Succeed())
			var session map[string]any
			decode(&session)
			sessionID := session["id"].(string)
			Expect(session["duration_minutes"]).To(BeEquivalentTo(30))

			recording := filepath.Join(dir, "night.edf")
			Expect(os.WriteFile(recording, []byte("EDF-DATA"), 0o600)).To(Succeed())
			Expect(run("files", "attach", recording, "--session", sessionID, "-o", "json")).To(Succeed())
			var file map[string]any
			decode(&file)

			Expect(run("analyses", "attach", "--session", sessionID, "--model", "cnn", "--label", "Calm",
				"--confidence", "0.7", "--metrics", `{"alpha":0.5}`)).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("Calm"))

			Expect(run("files", "get", file["id"].(string))).To(Succeed())
			Expect(stdout.String()).To(Equal("EDF-DATA"))

			Expect(run("files", "get", file["id"].(string), "--url")).To(Succeed())
			Expect(stdout.String()).To(HavePrefix("http://local.blob/eeg_files/"))

			Expect(run("files", "orphans", "--min-age", "0", "-o", "json")).To(Succeed())
			var orphans []map[string]any
			decode(&orphans)
			Expect(orphans).To(BeEmpty())

			Expect(run("patients", "show", patientID, "-o", "json")).To(Succeed())
			var rec struct {
				Sessions []struct {
					Files    []map[string]any `json:"files"`
					Analyses []map[string]any `json:"analyses"`
				} `json:"sessions"`
			}
			decode(&rec)
			Expect(rec.Sessions).To(HaveLen(1))
			Expect(rec.Sessions[0].Files).To(HaveLen(1))
			Expect(rec.Sessions[0].Analyses).To(HaveLen(1))

			Expect(run("patients", "delete", patientID)).To(Succeed())
			Expect(run("summary", "-o", "json")).To(Succeed())
			var sum map[string]any
			decode(&sum)
			Expect(sum["sessions"]).To(BeEquivalentTo(0))
			Expect(sum["result_files"]).To(BeEquivalentTo(0))
		})

		It("rejects a disallowed file extension before touching storage", func() {
			path := filepath.Join(dir, "notes.docx")
			Expect(os.WriteFile(path, []byte("x"), 0o600)).To(Succeed())
			Expect(run("files", "attach", path, "--session", "any")).To(MatchError(ContainSubstring("extension")))
			Expect(filepath.Join(dir, "media")).NotTo(BeADirectory())
		})

		It("rejects an explicit zero duration", func() {
			Expect(run("patients", "create", "--name", "Zed", "--birth-date", "1990-01-01", "-o", "json")).To(Succeed())
			var patient map[string]any
			decode(&patient)
			Expect(run("sessions", "create", "--patient", patient["id"].(string), "--start", "2024-05-01T09:00:00Z",
				"--technician", "T", "--duration", "0")).To(MatchError(ContainSubstring("duration_minutes")))
		})

		It("sweeps bytes left behind by deleted records", func() {
			Expect(run("seed", "--demo")).To(Succeed())
			Expect(run("files", "orphans", "--min-age", "0")).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("No orphan files"))

			// a stored visualization whose record row is gone
			Expect(os.MkdirAll(filepath.Join(dir, "media", "eeg_visuals"), 0o750)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "media", "eeg_visuals", "lost.png"), []byte("png"), 0o600)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "media", "eeg_visuals", "lost.png.meta"), []byte(`{"size":3}`), 0o600)).To(Succeed())

			Expect(run("files", "orphans", "--min-age", "0", "--remove", "-o", "json")).To(Succeed())
			var removed []map[string]any
			decode(&removed)
			Expect(removed).To(HaveLen(1))
			Expect(removed[0]["key"]).To(Equal("eeg_visuals/lost.png"))
			Expect(filepath.Join(dir, "media", "eeg_visuals", "lost.png")).NotTo(BeAnExistingFile())
		})

		It("reports unknown patients", func() {
			Expect(run("patients", "show", "ghost")).To(MatchError(ContainSubstring("not found")))
		})

		It("rejects duplicate patient names", func() {
			Expect(run("patients", "create", "--name", "A", "--birth-date", "1990-01-01")).To(Succeed())
			Expect(run("patients", "create", "--name", "A", "--birth-date", "1991-01-01")).To(MatchError(ContainSubstring("already exists")))
		})
	})

	Describe("listing", func() {
		It("lists patients by name with session counts", func() {
			Expect(run("seed", "--demo")).To(Succeed())
			Expect(run("patients", "list", "-o", "json")).To(Succeed())
			var patients []struct {
				FullName string `json:"full_name"`
				Sessions int    `json:"sessions_count"`
			}
			decode(&patients)
			Expect(patients).To(HaveLen(3))
			Expect(patients[0].FullName).To(Equal("Алексей Котов"))
			Expect(patients[2].FullName).To(Equal("Мария Петрова"))
			Expect(patients[1].Sessions).To(Equal(2))

			Expect(run("patients", "list")).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("Иван Иванов"))
		})

		It("prints the summary table", func() {
			Expect(run("seed", "--demo")).To(Succeed())
			Expect(run("summary")).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("PATIENT"))
			Expect(strings.Count(stdout.String(), "Др.")).To(Equal(4))
		})
	})

	Describe("configuration", func() {
		It("writes the metrics textfile", func() {
			prom := filepath.Join(dir, "eegrecords.prom")
			Expect(run("seed", "--demo", "--metrics-textfile", prom)).To(Succeed())
			body, err := os.ReadFile(prom)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`eegrecords_operations_total{operation="seed",status="success"} 1`))
		})

		It("rejects unknown output formats", func() {
			Expect(run("summary", "-o", "xml")).To(MatchError(ContainSubstring("unknown output format")))
		})

		It("reads settings from a config file", func() {
			cfg := filepath.Join(dir, "config.yaml")
			Expect(os.WriteFile(cfg, []byte("log:\n  json: true\n  debug: true\n"), 0o600)).To(Succeed())
			Expect(run("summary", "--config", cfg)).To(Succeed())
			Expect(stderr.String()).To(ContainSubstring(`"msg":"backends ready"`))
		})
	})
})
