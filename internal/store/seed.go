package store

import (
	"time"

	"wisefido-allocator/internal/models"
)

// MockData 开发环境种子数据（DB 未就绪时用于联测）
// 到达时间相对 now 计算，保证评分可复现
func MockData(now time.Time) ([]models.Patient, []models.Resource) {
	ago := func(d time.Duration) time.Time { return now.Add(-d) }
	release := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}

	patients := []models.Patient{
		{
			ID: "P001", Name: "John Doe", Age: 45, Triage: models.TriageCritical, Status: models.PatientInTreatment,
			Vitals:         vitals(110, 92, 38.5),
			ChiefComplaint: "Chest Pain with Shortness of Breath", Location: "ER Bay 3", ArrivalTime: ago(2 * time.Hour),
		},
		{
			ID: "P002", Name: "Jane Smith", Age: 32, Triage: models.TriageCritical, Status: models.PatientInTreatment,
			Vitals:         vitals(118, 89, 37.2),
			ChiefComplaint: "Respiratory Distress, Severe Wheezing", Location: "ER Bay 1", ArrivalTime: ago(3 * time.Hour),
		},
		{
			ID: "P003", Name: "Robert Johnson", Age: 78, Triage: models.TriageCritical, Status: models.PatientInTreatment,
			Vitals:         vitals(125, 82, 37.9),
			ChiefComplaint: "Respiratory Distress, Leg Swelling", Location: "ER Bay 2", ArrivalTime: ago(4 * time.Hour),
		},
		{
			ID: "P004", Name: "Maria Garcia", Age: 25, Triage: models.TriageUrgent, Status: models.PatientInTreatment,
			Vitals:         vitals(105, 97, 38.9),
			ChiefComplaint: "Severe Pain in lower abdomen", Location: "ER Bay 5", ArrivalTime: ago(90 * time.Minute),
		},
		{
			ID: "P005", Name: "David Wilson", Age: 52, Triage: models.TriageUrgent, Status: models.PatientInTreatment,
			Vitals:         vitals(88, 98, 36.8),
			ChiefComplaint: "Severe Headache, Blurred Vision", Location: "ER Bay 4", ArrivalTime: ago(75 * time.Minute),
		},
		{
			ID: "P006", Name: "Sarah Brown", Age: 18, Triage: models.TriageNonUrgent, Status: models.PatientWaiting,
			Vitals:         vitals(82, 99, 37.8),
			ChiefComplaint: "Sore Throat", Location: "Waiting Room", ArrivalTime: ago(50 * time.Minute),
		},
		{
			ID: "P007", Name: "Michael Lee", Age: 65, Triage: models.TriageUrgent, Status: models.PatientInTreatment,
			Vitals:         vitals(58, 94, 36.4),
			ChiefComplaint: "Dizziness, suspected GI Bleeding", Location: "ER Bay 6", ArrivalTime: ago(2 * time.Hour),
		},
		{
			ID: "P008", Name: "Emily Chen", Age: 29, Triage: models.TriageNonUrgent, Status: models.PatientWaiting,
			Vitals:         vitals(76, 99, 36.9),
			ChiefComplaint: "Wrist Pain, possible Fracture", Location: "Waiting Room", ArrivalTime: ago(35 * time.Minute),
		},
		{
			ID: "P009", Name: "Unknown Male", Age: 40, Triage: models.TriageCritical, Status: models.PatientWaiting,
			ChiefComplaint: "Trauma, motor vehicle collision", Location: "Field", ArrivalTime: ago(10 * time.Minute),
		},
	}

	inUse := func(id, name string, t models.ResourceType, patientID string) models.Resource {
		return models.Resource{
			ID: id, Name: name, Type: t, Status: models.StatusInUse, Location: "Emergency Department",
			AssignedTo: patientID, EstimatedRelease: release(2 * time.Hour),
		}
	}
	free := func(id, name string, t models.ResourceType, location string) models.Resource {
		return models.Resource{ID: id, Name: name, Type: t, Status: models.StatusAvailable, Location: location}
	}

	ambulance := inUse("R015", "Ambulance 2", models.ResourceAmbulance, "P009")
	ambulance.Location = "Field"
	ambulance.EstimatedRelease = release(5 * time.Minute)

	resources := []models.Resource{
		inUse("R001", "ER Bed 1", models.ResourceBed, "P002"),
		inUse("R002", "ER Bed 2", models.ResourceBed, "P003"),
		inUse("R003", "ER Bed 3", models.ResourceBed, "P001"),
		inUse("R004", "ER Bed 4", models.ResourceBed, "P005"),
		inUse("R005", "ER Bed 5", models.ResourceBed, "P004"),
		inUse("R006", "ER Bed 6", models.ResourceBed, "P007"),
		free("R007", "ER Bed 7", models.ResourceBed, "Emergency Department"),
		free("R008", "ER Bed 8", models.ResourceBed, "Emergency Department"),
		inUse("R009", "Ventilator 1", models.ResourceVentilator, "P003"),
		free("R010", "Ventilator 2", models.ResourceVentilator, "Emergency Department"),
		inUse("R011", "Cardiac Monitor 1", models.ResourceMonitor, "P001"),
		inUse("R012", "Cardiac Monitor 2", models.ResourceMonitor, "P003"),
		free("R013", "Cardiac Monitor 3", models.ResourceMonitor, "Emergency Department"),
		free("R014", "Ambulance 1", models.ResourceAmbulance, "Ambulance Bay"),
		ambulance,
		inUse("R016", "Dr. Johnson", models.ResourceStaff, "P001"),
		inUse("R017", "Dr. Williams", models.ResourceStaff, "P003"),
		inUse("R018", "Nurse Martinez", models.ResourceStaff, "P002"),
		free("R019", "Nurse Thompson", models.ResourceStaff, "Emergency Department"),
		free("R020", "O- Blood", models.ResourceBlood, "Blood Bank"),
	}

	return patients, resources
}

func vitals(hr, spo2 int, temp float64) models.VitalSigns {
	return models.VitalSigns{HeartRate: &hr, OxygenSaturation: &spo2, Temperature: &temp}
}
